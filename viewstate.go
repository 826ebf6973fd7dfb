package viewdb

import "github.com/vmihailenco/msgpack/v5"

// viewState is the persisted metadata record described in §4.6 and §6:
// {version, docType, lastSequenceIndexed, lastSequenceChangedAt, totalRows}.
// It is stored msgpack-encoded under a fixed key in the view's own bucket.
type viewState struct {
	Version                string `msgpack:"v"`
	DocType                string `msgpack:"dt"`
	LastSequenceIndexed    uint64 `msgpack:"lsi"`
	LastSequenceChangedAt  uint64 `msgpack:"lsc"`
	TotalRows              int64  `msgpack:"tr"`
}

var viewStateKey = []byte("_state")

func loadViewState(buck storageBucket) (viewState, bool, error) {
	raw := buck.Get(viewStateKey)
	if raw == nil {
		return viewState{}, false, nil
	}
	var vs viewState
	if err := msgpack.Unmarshal(raw, &vs); err != nil {
		return viewState{}, false, corruptErr("viewState.load", nil, err, "decoding view state")
	}
	return vs, true, nil
}

func saveViewState(buck storageBucket, vs viewState) error {
	raw, err := msgpack.Marshal(&vs)
	if err != nil {
		return wrapErr(KindInvalidParameter, "viewState.save", err, "encoding view state")
	}
	return buck.Put(viewStateKey, raw)
}
