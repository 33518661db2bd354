package export

import (
	"bytes"
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/polygon-locator/internal/repository"
	"github.com/joseph-ayodele/polygon-locator/internal/tree"
)

// RunStruct renders a stored run as a protobuf Struct. The enriched tree, when
// the run recorded one, is nested under "result".
func RunStruct(r repository.Run) (*structpb.Struct, error) {
	fields := map[string]*structpb.Value{
		"id":                 structpb.NewStringValue(r.ID.String()),
		"document":           structpb.NewStringValue(r.Document),
		"contentHash":        structpb.NewStringValue(r.ContentHash),
		"provider":           structpb.NewStringValue(r.Provider),
		"status":             structpb.NewStringValue(string(r.Status)),
		"threshold":          structpb.NewNumberValue(r.Threshold),
		"totalFields":        structpb.NewNumberValue(float64(r.TotalFields)),
		"fieldsWithPolygons": structpb.NewNumberValue(float64(r.FieldsWithPolygons)),
		"startedAt":          structpb.NewStringValue(r.StartedAt.UTC().Format(time.RFC3339Nano)),
	}
	if r.FinishedAt != nil {
		fields["finishedAt"] = structpb.NewStringValue(r.FinishedAt.UTC().Format(time.RFC3339Nano))
	}
	if r.ErrorMessage != "" {
		fields["error"] = structpb.NewStringValue(r.ErrorMessage)
	}
	if len(r.Result) > 0 {
		v, err := tree.Parse(r.Result)
		if err != nil {
			return nil, fmt.Errorf("run %s: stored result: %w", r.ID, err)
		}
		pv, err := tree.ToProto(v)
		if err != nil {
			return nil, fmt.Errorf("run %s: %w", r.ID, err)
		}
		fields["result"] = pv
	}
	return &structpb.Struct{Fields: fields}, nil
}

// RunsJSON writes one protojson object per run, newline separated.
func RunsJSON(runs []repository.Run) ([]byte, error) {
	var buf bytes.Buffer
	for _, r := range runs {
		s, err := RunStruct(r)
		if err != nil {
			return nil, err
		}
		b, err := protojson.Marshal(s)
		if err != nil {
			return nil, err
		}
		buf.Write(b)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}
