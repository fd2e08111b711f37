package engine

import (
	"reflect"

	"github.com/classkeeper/classkeeper/internal/model"
)

// Create conflicts report a fixed list of identity fields per record type
// rather than a computed diff. Update conflicts diff a fixed watch-list of
// domain fields, reporting only the ones whose values actually differ.
var (
	createFields = map[model.RecordType][]string{
		model.TypeAssignment: {"title", "description", "due_date"},
		model.TypeSubmission: {"answers", "submitted_at"},
	}

	updateWatchFields = []string{"title", "description", "answers", "grade", "feedback"}
)

func createConflictFields(t model.RecordType) []string {
	return append([]string(nil), createFields[t]...)
}

func diffFields(local, server model.Record) []string {
	var out []string
	for _, name := range updateWatchFields {
		lv, lok := local.Fields[name]
		sv, sok := server.Fields[name]
		if lok != sok || (lok && !reflect.DeepEqual(lv, sv)) {
			out = append(out, name)
		}
	}
	return out
}
