package codec

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/bufbuild/protocompile"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/tidemark-io/tidemark-go/pkg/series"
)

// datapointsProto is the wire schema of the binary datapoints format. It is
// compiled once at first use; generated code is not checked in because the
// schema is this small and never varies independently of the SDK.
const datapointsProto = `
syntax = "proto3";

package tidemark.api.v1;

message DatapointBatch {
  string name = 1;
  oneof data {
    NumericData numeric = 2;
    StringData strings = 3;
  }
}

message NumericData {
  repeated NumericDatapoint points = 1;
}

message NumericDatapoint {
  int64 timestamp = 1;
  double value = 2;
}

message StringData {
  repeated StringDatapoint points = 1;
}

message StringDatapoint {
  int64 timestamp = 1;
  string value = 2;
}
`

const protoFileName = "tidemark_datapoints.proto"

// protoSchema caches the compiled message and field descriptors.
type protoSchema struct {
	batch protoreflect.MessageDescriptor

	name    protoreflect.FieldDescriptor
	numeric protoreflect.FieldDescriptor
	strs    protoreflect.FieldDescriptor

	numericPoints protoreflect.FieldDescriptor
	numericTs     protoreflect.FieldDescriptor
	numericValue  protoreflect.FieldDescriptor

	stringPoints protoreflect.FieldDescriptor
	stringTs     protoreflect.FieldDescriptor
	stringValue  protoreflect.FieldDescriptor
}

var loadSchema = sync.OnceValues(func() (*protoSchema, error) {
	resolver := &schemaResolver{fileName: protoFileName, content: datapointsProto}
	compiler := protocompile.Compiler{
		Resolver:       protocompile.WithStandardImports(resolver),
		SourceInfoMode: protocompile.SourceInfoNone,
	}

	files, err := compiler.Compile(context.Background(), protoFileName)
	if err != nil {
		return nil, fmt.Errorf("failed to compile datapoints schema: %w", err)
	}
	fd := files[0]

	s := &protoSchema{}
	if s.batch = fd.Messages().ByName("DatapointBatch"); s.batch == nil {
		return nil, fmt.Errorf("datapoints schema is missing the DatapointBatch message")
	}
	s.name = s.batch.Fields().ByName("name")
	s.numeric = s.batch.Fields().ByName("numeric")
	s.strs = s.batch.Fields().ByName("strings")

	numericData := fd.Messages().ByName("NumericData")
	s.numericPoints = numericData.Fields().ByName("points")
	numericPoint := fd.Messages().ByName("NumericDatapoint")
	s.numericTs = numericPoint.Fields().ByName("timestamp")
	s.numericValue = numericPoint.Fields().ByName("value")

	stringData := fd.Messages().ByName("StringData")
	s.stringPoints = stringData.Fields().ByName("points")
	stringPoint := fd.Messages().ByName("StringDatapoint")
	s.stringTs = stringPoint.Fields().ByName("timestamp")
	s.stringValue = stringPoint.Fields().ByName("value")

	return s, nil
})

// schemaResolver serves the embedded proto source to the compiler.
type schemaResolver struct {
	fileName string
	content  string
}

func (r *schemaResolver) FindFileByPath(path string) (protocompile.SearchResult, error) {
	if path == r.fileName {
		return protocompile.SearchResult{Source: strings.NewReader(r.content)}, nil
	}
	return protocompile.SearchResult{}, fmt.Errorf("file not found: %s", path)
}

// DecodeProtobuf parses a binary datapoints response into the series name
// and its page.
func DecodeProtobuf(data []byte) (string, series.Page, error) {
	s, err := loadSchema()
	if err != nil {
		return "", nil, err
	}

	msg := dynamicpb.NewMessage(s.batch)
	if err := proto.Unmarshal(data, msg); err != nil {
		return "", nil, fmt.Errorf("failed to decode protobuf datapoints: %w", err)
	}

	name := msg.Get(s.name).String()
	var page series.Page

	switch {
	case msg.Has(s.numeric):
		points := msg.Get(s.numeric).Message().Get(s.numericPoints).List()
		page = make(series.Page, 0, points.Len())
		for i := 0; i < points.Len(); i++ {
			p := points.Get(i).Message()
			page = append(page, series.Datapoint{
				Timestamp: p.Get(s.numericTs).Int(),
				Value:     series.Float(p.Get(s.numericValue).Float()),
			})
		}
	case msg.Has(s.strs):
		points := msg.Get(s.strs).Message().Get(s.stringPoints).List()
		page = make(series.Page, 0, points.Len())
		for i := 0; i < points.Len(); i++ {
			p := points.Get(i).Message()
			page = append(page, series.Datapoint{
				Timestamp: p.Get(s.stringTs).Int(),
				Value:     series.Str(p.Get(s.stringValue).String()),
			})
		}
	}

	return name, page, nil
}

// EncodeProtobuf renders a page in the binary datapoints format. A page
// holding any string value encodes entirely on the string channel, matching
// how string-typed series are stored.
func EncodeProtobuf(name string, page series.Page) ([]byte, error) {
	s, err := loadSchema()
	if err != nil {
		return nil, err
	}

	msg := dynamicpb.NewMessage(s.batch)
	msg.Set(s.name, protoreflect.ValueOfString(name))

	hasString := false
	for _, dp := range page {
		if dp.Value.IsString() {
			hasString = true
			break
		}
	}

	if hasString {
		list := msg.Mutable(s.strs).Message().Mutable(s.stringPoints).List()
		for _, dp := range page {
			e := list.NewElement()
			p := e.Message()
			p.Set(s.stringTs, protoreflect.ValueOfInt64(dp.Timestamp))
			p.Set(s.stringValue, protoreflect.ValueOfString(dp.Value.String()))
			list.Append(e)
		}
	} else {
		list := msg.Mutable(s.numeric).Message().Mutable(s.numericPoints).List()
		for _, dp := range page {
			e := list.NewElement()
			p := e.Message()
			p.Set(s.numericTs, protoreflect.ValueOfInt64(dp.Timestamp))
			p.Set(s.numericValue, protoreflect.ValueOfFloat64(dp.Value.Float64()))
			list.Append(e)
		}
	}

	return proto.Marshal(msg)
}
