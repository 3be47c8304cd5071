package main

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus"
)

func TestLogWriter(t *testing.T) {
	var (
		out bytes.Buffer
		log = logrus.New()
	)
	log.SetOutput(&out)
	log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true, DisableQuote: true})

	w := newLogWriter(log.WithField("src", "kernel"))
	for _, chunk := range []string{"[pmm] one\n[vmm] tw", "o\n", "partial"} {
		if n, err := w.Write([]byte(chunk)); err != nil || n != len(chunk) {
			t.Fatalf("expected write of %d bytes; got %d, %v", len(chunk), n, err)
		}
	}

	exp := "level=info msg=[pmm] one src=kernel\nlevel=info msg=[vmm] two src=kernel\n"
	if diff := cmp.Diff(exp, out.String()); diff != "" {
		t.Fatalf("unexpected log output (-want +got):\n%s", diff)
	}

	w.Flush()
	exp += "level=info msg=partial src=kernel\n"
	if diff := cmp.Diff(exp, out.String()); diff != "" {
		t.Fatalf("unexpected log output after flush (-want +got):\n%s", diff)
	}
}
