package service

import (
	"bytes"
	"errors"
	"testing"
)

func TestParseDataURI(t *testing.T) {
	got, err := ParseDataURI("data:image/png;base64,aGVsbG8=")
	if err != nil {
		t.Fatalf("ParseDataURI: %v", err)
	}
	if got.MIMEType != "image/png" {
		t.Errorf("MIME = %q", got.MIMEType)
	}
	if !bytes.Equal(got.Data, []byte("hello")) {
		t.Errorf("данные = %q", got.Data)
	}
}

func TestParseDataURI_Invalid(t *testing.T) {
	for _, uri := range []string{
		"",
		"hello",
		"data:image/png;base64",
		"data:image/png;base64,",
		"data:;base64,aGVsbG8=",
		"data:image/png,aGVsbG8=",
		"data:image/png;charset=utf-8;base64,aGVsbG8=",
		"image/png;base64,aGVsbG8=",
		"data:image/png;base64,!!!",
	} {
		if _, err := ParseDataURI(uri); !errors.Is(err, ErrInvalidPayload) {
			t.Errorf("ParseDataURI(%q): ожидалась ErrInvalidPayload, получено %v", uri, err)
		}
	}
}
