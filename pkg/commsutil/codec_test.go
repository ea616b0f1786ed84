package commsutil

import (
	"testing"

	"github.com/morezero/datatype-introspection/pkg/datatype"
)

type maskPayload struct {
	Kind datatype.Kind   `json:"kind"`
	Mask datatype.IDMask `json:"mask"`
}

func TestEncodePayload_Mask(t *testing.T) {
	data, err := EncodePayload(maskPayload{Kind: datatype.KindService, Mask: datatype.IDMaskOf(10, 0, 9)})
	if err != nil {
		t.Fatalf("commsutil:codec_test - unexpected error: %v", err)
	}
	want := `{"kind":0,"mask":{"len":10,"bits":"AQI="}}`
	if string(data) != want {
		t.Errorf("commsutil:codec_test - EncodePayload() = %s, want %s", data, want)
	}
}

func TestEncodePayload_Unserializable(t *testing.T) {
	if _, err := EncodePayload(make(chan int)); err == nil {
		t.Fatal("commsutil:codec_test - expected error but got nil")
	}
}

func TestDecodePayload(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantLen int
		wantIDs []int
		wantErr bool
	}{
		{name: "mask", data: `{"kind":1,"mask":{"len":3,"bits":"BQ=="}}`, wantLen: 3, wantIDs: []int{0, 2}},
		{name: "bits past len dropped", data: `{"kind":1,"mask":{"len":2,"bits":"/w=="}}`, wantLen: 2, wantIDs: []int{0, 1}},
		{name: "missing mask", data: `{"kind":1}`, wantLen: 0, wantIDs: []int{}},
		{name: "oversized mask", data: `{"kind":1,"mask":{"len":99999999,"bits":""}}`, wantErr: true},
		{name: "invalid json", data: `{invalid}`, wantErr: true},
		{name: "empty data", data: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got maskPayload
			err := DecodePayload([]byte(tt.data), &got)

			if tt.wantErr {
				if err == nil {
					t.Fatal("commsutil:codec_test - expected error but got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("commsutil:codec_test - unexpected error: %v", err)
			}
			if got.Mask.Len() != tt.wantLen {
				t.Errorf("commsutil:codec_test - len = %d, want %d", got.Mask.Len(), tt.wantLen)
			}
			ids := got.Mask.IDs()
			if len(ids) != len(tt.wantIDs) {
				t.Fatalf("commsutil:codec_test - ids = %v, want %v", ids, tt.wantIDs)
			}
			for i := range ids {
				if ids[i] != tt.wantIDs[i] {
					t.Errorf("commsutil:codec_test - ids = %v, want %v", ids, tt.wantIDs)
				}
			}
		})
	}
}
