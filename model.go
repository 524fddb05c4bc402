package plmxml

// Namespace is the PLMXML schema namespace. Elements outside it are ignored.
const Namespace = "http://www.plmxml.org/Schemas/PLMXMLSchema"

// Product represents a master item (the <Product> element)
type Product struct {
	ID        string
	ProductID string // external product code
	Name      string
	SubType   string
	UID       string // from ApplicationRef label
	Pos       Position
}

// ProductRevision represents a specific revision of a Product
type ProductRevision struct {
	ID           string
	Name         string
	SubType      string
	Revision     string
	MasterRef    string // Product id
	ObjectString string // UserValue object_string
	LastModDate  string // UserValue last_mod_date
	RevisionUID  string // from ApplicationRef version
	Attributes   Attributes
	Pos          Position
}

// Occurrence is one unresolved node of a BOM tree as declared in the document
type Occurrence struct {
	ID                       string
	InstancedRef             string // ProductRevision id
	AssociatedAttachmentRefs []string
	OccurrenceRefs           []string // child Occurrence ids, in document order
	SequenceNumber           string
	Quantity                 string
	Attributes               Attributes
	Pos                      Position
}

// AssociatedAttachment pairs an attachment (DataSet or Form) with a role
type AssociatedAttachment struct {
	ID            string
	AttachmentRef string
	Role          string
	Pos           Position
}

// DataSet is a named, typed, versioned container of external files
type DataSet struct {
	ID         string
	Name       string
	Type       string
	Version    string
	MemberRefs []string // ExternalFile ids
	UID        string
	Pos        Position
}

// ExternalFile references file content relative to the document
type ExternalFile struct {
	ID           string
	Format       string
	LocationRef  string
	AbsolutePath string // empty when the location could not be resolved
	Pos          Position
}

// Form is a named record of free-form attributes
type Form struct {
	ID         string
	Name       string
	SubType    string
	SubClass   string
	UID        string
	Attributes Attributes
	Pos        Position
}

// ProductView is one top-level BOM configuration with its declared roots
type ProductView struct {
	ID                   string
	RuleRefs             []string
	PrimaryOccurrenceRef string
	RootRefs             []string
	Pos                  Position
}

// RootIDs returns the occurrence ids this view is rooted at: RootRefs when
// present, otherwise the primary occurrence, otherwise nothing.
func (pv *ProductView) RootIDs() []string {
	if len(pv.RootRefs) > 0 {
		return pv.RootRefs
	}
	if pv.PrimaryOccurrenceRef != "" {
		return []string{pv.PrimaryOccurrenceRef}
	}
	return nil
}

// RevisionRule is a named revision rule
type RevisionRule struct {
	ID   string
	Name string
}

// Site identifies an originating site
type Site struct {
	ID     string
	Name   string
	SiteID string
}

// GeneralInfo holds the attributes of the <PLMXML> root element
type GeneralInfo struct {
	SchemaVersion string
	Author        string
	Date          string
	Time          string
}

// TransferContext holds a <Header> element
type TransferContext struct {
	ID              string
	TransferContext string
}

// Document holds the flat record tables produced by the stream reader.
// It is populated once during Parse and must be treated as read-only after.
type Document struct {
	BaseDir string

	GeneralInfo           map[string]*GeneralInfo // keyed by schema version
	TransferContexts      map[string]*TransferContext
	Sites                 map[string]*Site
	RevisionRules         map[string]*RevisionRule
	Products              map[string]*Product
	ProductRevisions      map[string]*ProductRevision
	Occurrences           map[string]*Occurrence
	AssociatedAttachments map[string]*AssociatedAttachment
	Forms                 map[string]*Form
	DataSets              map[string]*DataSet
	ExternalFiles         map[string]*ExternalFile
	ProductViews          []*ProductView

	generalOrder []string
}

func newDocument(baseDir string) *Document {
	return &Document{
		BaseDir:               baseDir,
		GeneralInfo:           make(map[string]*GeneralInfo),
		TransferContexts:      make(map[string]*TransferContext),
		Sites:                 make(map[string]*Site),
		RevisionRules:         make(map[string]*RevisionRule),
		Products:              make(map[string]*Product),
		ProductRevisions:      make(map[string]*ProductRevision),
		Occurrences:           make(map[string]*Occurrence),
		AssociatedAttachments: make(map[string]*AssociatedAttachment),
		Forms:                 make(map[string]*Form),
		DataSets:              make(map[string]*DataSet),
		ExternalFiles:         make(map[string]*ExternalFile),
	}
}

// Header is the header-only view of a document
type Header struct {
	SchemaVersion string
	Author        string
	Date          string
	Time          string
}

// Header returns the first parsed <PLMXML> header, if any. Later roots with
// the same schema version do not replace it.
func (d *Document) Header() (Header, bool) {
	if len(d.generalOrder) == 0 {
		return Header{}, false
	}
	info := d.GeneralInfo[d.generalOrder[0]]
	return Header{
		SchemaVersion: info.SchemaVersion,
		Author:        info.Author,
		Date:          info.Date,
		Time:          info.Time,
	}, true
}
