package logging

import (
	"fmt"

	"github.com/snarehq/snare/pkg/api"
)

// StoreObserver bridges record store notifications onto the audit stream.
// It satisfies the store's observer contract and is safe for concurrent use
// because the emitter's sinks are.
type StoreObserver struct {
	emitter *Emitter
}

func NewStoreObserver(emitter *Emitter) *StoreObserver {
	return &StoreObserver{emitter: emitter}
}

func (o *StoreObserver) RecordAdded(record api.TrafficRecord) {
	_ = o.emitter.Emit(EventRecordAdded,
		fmt.Sprintf("%s %s", record.Request.Method, record.Request.URL),
		nil, recordData(record))
}

func (o *StoreObserver) RecordUpdated(record api.TrafficRecord) {
	if record.State != api.StateCompleted && record.State != api.StateMocked {
		return
	}
	_ = o.emitter.Emit(EventRecordCompleted,
		fmt.Sprintf("%s %s (%s)", record.Request.Method, record.Request.URL, record.State),
		nil, recordData(record))
}

func (o *StoreObserver) RecordFailed(record api.TrafficRecord) {
	_ = o.emitter.Emit(EventRecordFailed,
		fmt.Sprintf("%s %s failed", record.Request.Method, record.Request.URL),
		nil, recordData(record))
}

func recordData(record api.TrafficRecord) *RecordData {
	data := &RecordData{
		RecordID: record.ID,
		Method:   record.Request.Method,
		URL:      record.Request.URL,
		State:    string(record.State),
	}
	if record.Response != nil {
		data.Status = record.Response.StatusCode
	}
	if record.Error != nil {
		data.Category = string(record.Error.Category)
	}
	return data
}
