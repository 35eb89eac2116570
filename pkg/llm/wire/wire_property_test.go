package wire

import (
	"errors"
	"io"
	"reflect"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func collectRaw(r nexter) ([]string, error) {
	var out []string
	for {
		ev, err := r.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, string(ev.Raw()))
	}
}

const propertyDoc = ": comment\n" +
	"data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n" +
	"\n" +
	"data: {\"choices\":[{\"delta\":\n" +
	"data: {\"content\":\"lo\"}}]}\n" +
	"\n" +
	"data: garbage\n" +
	"\n" +
	"data: {\"usage\":{\"total_tokens\":9}}\n" +
	"\n" +
	"data: [DONE]\n" +
	"\n" +
	"data: {\"after\":\"done\"}\n" +
	"\n"

func TestSSEReaderProperty_ChunkBoundaryInvariance(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	want, err := collectRaw(NewSSEReader(newChunkedBody(propertyDoc)))
	if err != nil {
		t.Fatal(err)
	}
	if len(want) != 3 {
		t.Fatalf("expected 3 events from reference parse, got %d", len(want))
	}

	properties.Property("any chunking parses like a single read", prop.ForAll(
		func(sizes []int) bool {
			got, err := collectRaw(NewSSEReader(newChunkedBody(propertyDoc, sizes...)))
			return err == nil && reflect.DeepEqual(want, got)
		},
		gen.SliceOf(gen.IntRange(1, 17)).SuchThat(func(s []int) bool { return len(s) > 0 }),
	))

	properties.TestingRun(t)
}

func TestSSEReaderProperty_CRLFMatchesLF(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	crlf := strings.ReplaceAll(propertyDoc, "\n", "\r\n")

	properties.Property("CRLF and LF yield the same events", prop.ForAll(
		func(sizes []int) bool {
			lf, err1 := collectRaw(NewSSEReader(newChunkedBody(propertyDoc, sizes...)))
			cr, err2 := collectRaw(NewSSEReader(newChunkedBody(crlf, sizes...)))
			return err1 == nil && err2 == nil && reflect.DeepEqual(lf, cr)
		},
		gen.SliceOf(gen.IntRange(1, 9)).SuchThat(func(s []int) bool { return len(s) > 0 }),
	))

	properties.TestingRun(t)
}

func TestNDJSONReaderProperty_SplitOffsetInvariance(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	doc := "{\"id\":1}\n{\"id\":2,\"msg\":\"two\"}\n{\"id\":3}"
	want := []string{"{\"id\":1}", "{\"id\":2,\"msg\":\"two\"}", "{\"id\":3}"}

	properties.Property("any split yields the same three objects", prop.ForAll(
		func(offset int) bool {
			got, err := collectRaw(NewNDJSONReader(newChunkedBody(doc, offset, len(doc))))
			return err == nil && reflect.DeepEqual(want, got)
		},
		gen.IntRange(1, len(doc)),
	))

	properties.TestingRun(t)
}
