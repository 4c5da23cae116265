package loki

import (
	"fmt"
	"sync"

	"github.com/jhump/protoreflect/desc"
	"github.com/jhump/protoreflect/desc/protoparse"
)

// pushProto is the part of Loki's push API we speak.
const pushProto = `
syntax = "proto3";

package logproto;

import "google/protobuf/timestamp.proto";

service Pusher {
  rpc Push(PushRequest) returns (PushResponse) {}
}

message PushRequest {
  repeated StreamAdapter streams = 1;
}

message PushResponse {}

message StreamAdapter {
  string labels = 1;
  repeated EntryAdapter entries = 2;
  uint64 hash = 3;
}

message EntryAdapter {
  google.protobuf.Timestamp timestamp = 1;
  string line = 2;
  repeated LabelPairAdapter structuredMetadata = 3;
}

message LabelPairAdapter {
  string name = 1;
  string value = 2;
}
`

// PushMethod is the full name of the push RPC.
const PushMethod = "/logproto.Pusher/Push"

// Descriptors are the message and service types of the push API.
type Descriptors struct {
	Pusher       *desc.ServiceDescriptor
	PushRequest  *desc.MessageDescriptor
	PushResponse *desc.MessageDescriptor
	Stream       *desc.MessageDescriptor
	Entry        *desc.MessageDescriptor
	LabelPair    *desc.MessageDescriptor
}

var (
	descsOnce sync.Once
	descs     *Descriptors
	descsErr  error
)

// PushDescriptors parses the push API once.
func PushDescriptors() (*Descriptors, error) {
	descsOnce.Do(func() {
		descs, descsErr = parsePushProto()
	})
	return descs, descsErr
}

func parsePushProto() (*Descriptors, error) {
	p := protoparse.Parser{
		Accessor: protoparse.FileContentsFromMap(map[string]string{
			"push.proto": pushProto,
		}),
	}
	fds, err := p.ParseFiles("push.proto")
	if err != nil {
		return nil, fmt.Errorf("failed to parse push.proto: %w", err)
	}
	fd := fds[0]

	d := &Descriptors{Pusher: fd.FindService("logproto.Pusher")}
	for name, md := range map[string]**desc.MessageDescriptor{
		"logproto.PushRequest":      &d.PushRequest,
		"logproto.PushResponse":     &d.PushResponse,
		"logproto.StreamAdapter":    &d.Stream,
		"logproto.EntryAdapter":     &d.Entry,
		"logproto.LabelPairAdapter": &d.LabelPair,
	} {
		if *md = fd.FindMessage(name); *md == nil {
			return nil, fmt.Errorf("push.proto has no %s", name)
		}
	}
	if d.Pusher == nil {
		return nil, fmt.Errorf("push.proto has no Pusher service")
	}
	return d, nil
}
