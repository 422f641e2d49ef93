// Package mutation defines what a watched page reports: mutation records
// grouped in batches, full snapshots, and clicks on injected controls.
// The document mirror and the export engine consume these types.
package mutation

// Op is the kind of change a Record carries.
type Op string

const (
	OpChildren Op = "children"  // every child of XPath replaced by HTML
	OpText     Op = "text"      // character data of the text node at XPath
	OpAttr     Op = "attr"      // attribute set on the element at XPath
	OpAttrDel  Op = "attr_del"  // attribute removed from the element at XPath
	OpDocReset Op = "doc_reset" // whole document replaced, a snapshot follows
)

// Record is a single change. Paths and values are read from the page when
// the mutation callback runs, so a batch applied in order reproduces the
// page as it was at that instant.
//
// XPath steps are tag[n], text()[n] or comment()[n], counted among
// siblings of the same kind, from the document down.
type Record struct {
	Op       Op     `json:"op"`
	XPath    string `json:"xpath"`
	Tag      string `json:"tag,omitempty"`       // element at XPath, for fragment parsing
	Name     string `json:"name,omitempty"`      // attribute name for attr/attr_del
	Value    string `json:"value,omitempty"`     // new attribute value or text
	OldValue string `json:"old_value,omitempty"` // previous value, when the page reported one
	HTML     string `json:"html,omitempty"`      // new inner HTML for children
}

// Batch is every record collected during one debounce window.
type Batch struct {
	ID          string   `json:"id"`
	PageURL     string   `json:"page_url"`
	PageID      string   `json:"page_id"`
	Seq         uint64   `json:"seq"` // per page, gaps mean lost batches
	Records     []Record `json:"records"`
	Timestamp   int64    `json:"timestamp"`    // epoch milliseconds at flush
	SnapshotRef string   `json:"snapshot_ref"` // snapshot the records apply on top of
}
