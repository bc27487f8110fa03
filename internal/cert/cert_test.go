package cert

import (
	"crypto/x509"
	"os"
	"testing"

	"github.com/raysh454/netmon/internal/logging"
)

func TestManager_IssuesVerifiableLeaf(t *testing.T) {
	t.Parallel()
	m, err := NewManager("", logging.Nop())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	for _, host := range []string{"example.test", "127.0.0.1"} {
		c, err := m.GetCertificate(host)
		if err != nil {
			t.Fatalf("GetCertificate(%s): %v", host, err)
		}
		leaf, err := x509.ParseCertificate(c.Certificate[0])
		if err != nil {
			t.Fatal(err)
		}
		if _, err := leaf.Verify(x509.VerifyOptions{DNSName: host, Roots: m.CertPool()}); err != nil {
			t.Errorf("leaf for %s does not verify: %v", host, err)
		}
	}
}

func TestManager_CachesLeaf(t *testing.T) {
	t.Parallel()
	m, err := NewManager("", nil)
	if err != nil {
		t.Fatal(err)
	}
	a, _ := m.GetCertificate("Example.test")
	b, _ := m.GetCertificate("example.test")
	if a != b {
		t.Fatal("expected cached certificate for the same host")
	}
}

func TestManager_PersistsCA(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	first, err := NewManager(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(first.CAPath()); err != nil {
		t.Fatalf("CA not written: %v", err)
	}

	second, err := NewManager(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !first.CACertificate().Equal(second.CACertificate()) {
		t.Fatal("expected the stored CA to be reused")
	}
}

func TestManager_RejectsCorruptCA(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	if err := os.WriteFile(dir+"/"+caCertFile, []byte("not pem"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewManager(dir, nil); err == nil {
		t.Fatal("expected error for corrupt CA")
	}
}
