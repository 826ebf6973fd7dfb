package viewdb

import "context"

// Document is one revision of a source record as handed to the indexer by
// the (externally owned) document store. Deleted is the tombstone flag: a
// deleted document still flows through indexing so its rows get retracted.
type Document struct {
	DocID    string
	Sequence uint64
	DocType  string
	Body     []byte // opaque; interpreted only by the caller's MapFunc
	Deleted  bool
}

// DocSource is the narrow contract this module consumes from the host
// record store (explicitly out of scope: revision trees, conflict
// resolution, document bodies beyond this opaque payload). Documents must be
// yielded in non-decreasing Sequence order, sequence > afterSeq.
type DocSource interface {
	// Documents returns a cursor over documents with Sequence > afterSeq, in
	// ascending sequence order, including deleted (tombstoned) documents.
	Documents(ctx context.Context, afterSeq uint64) (DocCursor, error)

	// LastSequence returns the highest sequence number currently committed.
	LastSequence(ctx context.Context) (uint64, error)
}

// DocCursor enumerates Documents; it must be closed by the caller.
type DocCursor interface {
	Next() bool
	Document() Document
	Err() error
	Close() error
}

// emptyDocCursor is the cursor EnumerateDocuments returns when no view was
// triggered and every participating view is already at the source's last
// sequence, distinguishable from an error per §4.4.
type emptyDocCursor struct{}

func (emptyDocCursor) Next() bool       { return false }
func (emptyDocCursor) Document() Document { return Document{} }
func (emptyDocCursor) Err() error       { return nil }
func (emptyDocCursor) Close() error     { return nil }

// memDocSource is a trivial in-memory DocSource used by this package's own
// tests; it has no relationship to any on-disk format.
type memDocSource struct {
	docs []Document
}

func newMemDocSource() *memDocSource {
	return &memDocSource{}
}

// Put appends a new revision of docID, assigning it the next sequence
// number; earlier revisions of the same docID stay in the feed.
func (s *memDocSource) Put(docID, docType string, body []byte) Document {
	d := Document{DocID: docID, Sequence: uint64(len(s.docs) + 1), DocType: docType, Body: body}
	s.docs = append(s.docs, d)
	return d
}

// Delete appends a tombstone for docID at the next sequence number, carrying
// the DocType of docID's latest revision.
func (s *memDocSource) Delete(docID string) Document {
	var docType string
	for _, d := range s.docs {
		if d.DocID == docID {
			docType = d.DocType
		}
	}
	d := Document{DocID: docID, Sequence: uint64(len(s.docs) + 1), DocType: docType, Deleted: true}
	s.docs = append(s.docs, d)
	return d
}

func (s *memDocSource) Documents(_ context.Context, afterSeq uint64) (DocCursor, error) {
	var out []Document
	for _, d := range s.docs {
		if d.Sequence > afterSeq {
			out = append(out, d)
		}
	}
	return &memDocCursor{docs: out, pos: -1}, nil
}

func (s *memDocSource) LastSequence(context.Context) (uint64, error) {
	return uint64(len(s.docs)), nil
}

type memDocCursor struct {
	docs []Document
	pos  int
}

func (c *memDocCursor) Next() bool {
	c.pos++
	return c.pos < len(c.docs)
}

func (c *memDocCursor) Document() Document { return c.docs[c.pos] }
func (c *memDocCursor) Err() error         { return nil }
func (c *memDocCursor) Close() error       { return nil }
