package transport

import (
	"bytes"
	"testing"
)

func TestRing(t *testing.T) {
	tests := []struct {
		name        string
		capacity    int
		writes      [][]byte
		wantDropped int
		want        []byte
	}{
		{"simple", 8, [][]byte{{1, 2, 3}}, 0, []byte{1, 2, 3}},
		{"fill exactly", 4, [][]byte{{1, 2}, {3, 4}}, 0, []byte{1, 2, 3, 4}},
		{"overflow drops oldest", 4, [][]byte{{1, 2, 3}, {4, 5}}, 1, []byte{2, 3, 4, 5}},
		{"oversized write", 4, [][]byte{{1}, {2, 3, 4, 5, 6, 7}}, 3, []byte{4, 5, 6, 7}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRing(tt.capacity)
			dropped := 0
			for _, w := range tt.writes {
				dropped += r.Write(w)
			}
			if dropped != tt.wantDropped {
				t.Errorf("dropped = %d, want %d", dropped, tt.wantDropped)
			}
			got := make([]byte, 16)
			n := r.Read(got)
			if !bytes.Equal(got[:n], tt.want) {
				t.Errorf("Read() = %v, want %v", got[:n], tt.want)
			}
			if r.Len() != 0 {
				t.Errorf("Len() = %d after drain", r.Len())
			}
		})
	}
}

func TestRingWrapAround(t *testing.T) {
	r := newRing(5)
	r.Write([]byte{1, 2, 3, 4})

	p := make([]byte, 3)
	r.Read(p)
	r.Write([]byte{5, 6, 7})

	got := make([]byte, 2)
	if n := r.Read(got); n != 2 || !bytes.Equal(got, []byte{4, 5}) {
		t.Errorf("Read() = %v", got[:n])
	}
	if n := r.Read(got); n != 2 || !bytes.Equal(got, []byte{6, 7}) {
		t.Errorf("Read() = %v", got[:n])
	}
}
