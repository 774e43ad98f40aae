package livefrag

import (
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	"github.com/pthm/livefrag/lib/urlstate"
)

// historyTag marks history entries as internally generated. Entries
// without it belong to the host page and are left alone.
const historyTag = "livefrag"

// HistoryState is the state blob attached to every history entry the
// engine writes: the tag, the originating controller and the URL state
// needed to replay the load. Encoded with msgpack.
type HistoryState struct {
	Tag        string      `msgpack:"tag"`
	Controller string      `msgpack:"controller"`
	Path       string      `msgpack:"path"`
	Params     [][2]string `msgpack:"params"`
	Hash       string      `msgpack:"hash"`
}

// historyState encodes the controller's current URL state. Caller holds
// c.mu.
func (c *Controller) historyState() []byte {
	state := HistoryState{
		Tag:        historyTag,
		Controller: c.id,
		Path:       c.url.Path,
		Params:     c.url.Params.Pairs(),
		Hash:       c.url.Hash,
	}
	blob, err := msgpack.Marshal(state)
	if err != nil {
		c.root.log.Warn("livefrag: history state encode failed", zap.Error(err))
		return nil
	}
	return blob
}

// DecodeHistoryState decodes a history state blob. ok is false when the
// blob is absent, undecodable or not tagged as engine-generated.
func DecodeHistoryState(blob []byte) (HistoryState, bool) {
	if len(blob) == 0 {
		return HistoryState{}, false
	}
	var state HistoryState
	if err := msgpack.Unmarshal(blob, &state); err != nil {
		return HistoryState{}, false
	}
	if state.Tag != historyTag {
		return HistoryState{}, false
	}
	return state, true
}

// HandlePop routes a back/forward navigation back to the originating
// controller. The host adapter calls it with the popped entry's state
// blob; a true return means the engine replayed the load and no full page
// reload is needed. Replayed loads never write history - the entry being
// restored already exists.
func (r *Root) HandlePop(blob []byte) bool {
	state, ok := DecodeHistoryState(blob)
	if !ok {
		return false
	}

	r.mu.Lock()
	c := r.byID[state.Controller]
	r.mu.Unlock()
	if c == nil {
		r.log.Debug("livefrag: popped entry for unknown controller",
			zap.String("controller", state.Controller))
		return false
	}

	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return false
	}
	c.url = urlstate.URL{
		Path:   state.Path,
		Params: urlstate.FromPairs(state.Params),
		Hash:   state.Hash,
	}
	c.mu.Unlock()

	c.load(loadReplace, false)
	return true
}
