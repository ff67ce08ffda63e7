package audio

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestForContentType(t *testing.T) {
	tests := []struct {
		contentType string
		want        string
	}{
		{"audio/x-l16;rate=16000", "audio/x-l16;rate=16000"},
		{"audio/x-mulaw;rate=8000", "audio/x-mulaw;rate=8000"},
		{"", "audio/x-l16;rate=16000"},
		{"something/else", "audio/x-l16;rate=16000"},
	}
	for _, tt := range tests {
		if got := ForContentType(tt.contentType).Name(); got != tt.want {
			t.Errorf("ForContentType(%q) = %q, want %q", tt.contentType, got, tt.want)
		}
	}
}

func TestL16Codec_Passthrough(t *testing.T) {
	payload := []byte{0x01, 0x02, 0x03, 0x04}
	c := L16Codec{}
	if !bytes.Equal(c.Decode(payload), payload) {
		t.Error("L16 decode should be identity")
	}
	if !bytes.Equal(c.Encode(payload), payload) {
		t.Error("L16 encode should be identity")
	}
}

func TestMuLawRoundTrip(t *testing.T) {
	// μ-law is lossy, so only check the round trip stays close.
	for _, sample := range []int16{0, 100, -100, 1000, -1000, 16000, -16000} {
		encoded := linearToMulaw(sample)
		decoded := mulawToLinear(encoded)
		diff := int32(decoded) - int32(sample)
		if diff < 0 {
			diff = -diff
		}
		// Error bound grows with magnitude (logarithmic companding).
		magnitude := int32(sample)
		if magnitude < 0 {
			magnitude = -magnitude
		}
		bound := magnitude/16 + 64
		if diff > bound {
			t.Errorf("sample %d: decoded %d, diff %d exceeds bound %d", sample, decoded, diff, bound)
		}
	}
}

func TestMuLawKnownValues(t *testing.T) {
	if got := linearToMulaw(0); got != 0xFF {
		t.Errorf("linearToMulaw(0) = %#x, want 0xff", got)
	}
	// Small samples must survive companding, not collapse to silence.
	if got := mulawToLinear(linearToMulaw(100)); got != 104 {
		t.Errorf("round trip of 100 = %d, want 104", got)
	}
	if got := mulawToLinear(linearToMulaw(-16000)); got != -15996 {
		t.Errorf("round trip of -16000 = %d, want -15996", got)
	}
}

func TestMuLawCodec_DecodeDoublesRate(t *testing.T) {
	payload := make([]byte, 80) // 10 ms of 8 kHz μ-law
	pcm := MuLawCodec{}.Decode(payload)

	// 80 μ-law samples -> 160 PCM samples at 16 kHz -> 320 bytes
	if len(pcm) != 320 {
		t.Errorf("expected 320 bytes of 16 kHz PCM, got %d", len(pcm))
	}
}

func TestMuLawCodec_EncodeHalvesRate(t *testing.T) {
	pcm := make([]byte, 640) // 20 ms of 16 kHz s16le
	for i := 0; i < len(pcm); i += 2 {
		binary.LittleEndian.PutUint16(pcm[i:], 1234)
	}
	mulaw := MuLawCodec{}.Encode(pcm)

	// 320 samples at 16 kHz -> 160 samples at 8 kHz -> 160 μ-law bytes,
	// minus the final sample the decimator cannot pair.
	if len(mulaw) < 158 || len(mulaw) > 160 {
		t.Errorf("expected ~160 μ-law bytes, got %d", len(mulaw))
	}
}

func TestBase64RoundTrip(t *testing.T) {
	data := []byte{0x00, 0x7f, 0x80, 0xff}
	decoded, err := Base64ToBytes(BytesToBase64(data))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if !bytes.Equal(decoded, data) {
		t.Errorf("round trip mismatch: %v != %v", decoded, data)
	}
}
