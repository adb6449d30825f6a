package jwt

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/dropDatabas3/authserve/internal/metrics"
	"github.com/dropDatabas3/authserve/internal/util/atomicwrite"
)

const rsaKeyBits = 2048

// KeyStore es el dueño del material de firma. Layout en disco:
//
//	<dir>/private/<kid>.pem   PKCS#8, solo lo lee este proceso (0600)
//	<dir>/public/<kid>.pem    PKIX, material publicable
//	<dir>/current_kid         puntero a la clave activa
//
// Garantías:
//   - Escrituras atómicas (tmp → fsync → rename) vía atomicwrite.
//   - El puntero se swapea atómico: un Issue concurrente ve el kid viejo o
//     el nuevo, nunca un estado a medias.
//   - Rotar NUNCA borra públicas anteriores; los tokens firmados con ellas
//     siguen verificando hasta su expiry. El retiro es acción operacional.
type KeyStore struct {
	dir string

	mu         sync.RWMutex
	currentKID string // cache del puntero; "" = no cargado aún
}

// PublicKey es una clave pública retenida, identificada por su kid.
type PublicKey struct {
	KID string
	Key *rsa.PublicKey
}

func NewKeyStore(dir string) (*KeyStore, error) {
	for _, d := range []string{dir, filepath.Join(dir, "private"), filepath.Join(dir, "public")} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("keystore: mkdir %s: %w", d, err)
		}
	}
	return &KeyStore{dir: dir}, nil
}

func (s *KeyStore) privatePath(kid string) string {
	return filepath.Join(s.dir, "private", kid+".pem")
}

func (s *KeyStore) publicPath(kid string) string {
	return filepath.Join(s.dir, "public", kid+".pem")
}

func (s *KeyStore) pointerPath() string {
	return filepath.Join(s.dir, "current_kid")
}

// CreateKeypair genera un par RSA nuevo, lo persiste y lo marca como clave
// activa. Retorna el kid. Ante cualquier fallo no queda clave parcial.
func (s *KeyStore) CreateKeypair() (string, error) {
	kid := strings.ReplaceAll(uuid.NewString(), "-", "")

	priv, err := rsa.GenerateKey(rand.Reader, rsaKeyBits)
	if err != nil {
		return "", fmt.Errorf("keystore: generate: %w", err)
	}

	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return "", fmt.Errorf("keystore: marshal private: %w", err)
	}
	privPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER})

	pubDER, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		return "", fmt.Errorf("keystore: marshal public: %w", err)
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})

	if err := atomicwrite.WriteFile(s.privatePath(kid), privPEM, 0o600); err != nil {
		return "", fmt.Errorf("keystore: write private: %w", err)
	}
	if err := atomicwrite.WriteFile(s.publicPath(kid), pubPEM, 0o644); err != nil {
		// no dejar la mitad privada huérfana
		_ = os.Remove(s.privatePath(kid))
		return "", fmt.Errorf("keystore: write public: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := atomicwrite.WriteFile(s.pointerPath(), []byte(kid), 0o644); err != nil {
		_ = os.Remove(s.privatePath(kid))
		_ = os.Remove(s.publicPath(kid))
		return "", fmt.Errorf("keystore: write pointer: %w", err)
	}
	s.currentKID = kid
	metrics.KeyRotations.Inc()
	return kid, nil
}

// Rotate es semánticamente CreateKeypair: la clave anterior queda retenida
// y publicada, así los tokens vigentes firmados con ella siguen válidos.
func (s *KeyStore) Rotate() (string, error) {
	return s.CreateKeypair()
}

// readCurrentKID lee el puntero de clave activa (cache primero).
func (s *KeyStore) readCurrentKID() (string, error) {
	s.mu.RLock()
	if s.currentKID != "" {
		kid := s.currentKID
		s.mu.RUnlock()
		return kid, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.currentKID != "" {
		return s.currentKID, nil
	}
	b, err := os.ReadFile(s.pointerPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrKeystoreUninitialized
		}
		return "", fmt.Errorf("keystore: read pointer: %w", err)
	}
	kid := strings.TrimSpace(string(b))
	if kid == "" {
		return "", ErrKeystoreUninitialized
	}
	s.currentKID = kid
	return kid, nil
}

// CurrentSigningKey devuelve (kid, clave privada) de la clave activa.
// ErrKeystoreUninitialized si falta el puntero: distinto de ErrNoKeys,
// porque puede haber claves en disco sin ninguna marcada activa.
func (s *KeyStore) CurrentSigningKey() (string, *rsa.PrivateKey, error) {
	kid, err := s.readCurrentKID()
	if err != nil {
		return "", nil, err
	}
	b, err := os.ReadFile(s.privatePath(kid))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil, fmt.Errorf("%w: private pem for kid %s missing", ErrNoKeys, kid)
		}
		return "", nil, fmt.Errorf("keystore: read private: %w", err)
	}
	priv, err := parsePrivatePEM(b)
	if err != nil {
		return "", nil, fmt.Errorf("keystore: parse private %s: %w", kid, err)
	}
	return kid, priv, nil
}

// ListPublicKeys devuelve todas las públicas retenidas, ordenadas por kid
// para que el JWKS sea determinístico.
func (s *KeyStore) ListPublicKeys() ([]PublicKey, error) {
	entries, err := os.ReadDir(filepath.Join(s.dir, "public"))
	if err != nil {
		return nil, fmt.Errorf("keystore: read public dir: %w", err)
	}
	out := make([]PublicKey, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".pem") {
			continue
		}
		kid := strings.TrimSuffix(name, ".pem")
		b, err := os.ReadFile(s.publicPath(kid))
		if err != nil {
			return nil, fmt.Errorf("keystore: read public %s: %w", kid, err)
		}
		pub, err := parsePublicPEM(b)
		if err != nil {
			return nil, fmt.Errorf("keystore: parse public %s: %w", kid, err)
		}
		out = append(out, PublicKey{KID: kid, Key: pub})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].KID < out[j].KID })
	return out, nil
}

// JWKS mapea cada pública retenida a su JWK. La privada jamás sale de acá.
func (s *KeyStore) JWKS() (JWKS, error) {
	pubs, err := s.ListPublicKeys()
	if err != nil {
		return JWKS{}, err
	}
	set := JWKS{Keys: make([]JWK, 0, len(pubs))}
	for _, p := range pubs {
		set.Keys = append(set.Keys, NewJWK(p.KID, p.Key))
	}
	return set, nil
}

func parsePrivatePEM(b []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(b)
	if block == nil {
		return nil, errors.New("invalid PEM")
	}
	k, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	priv, ok := k.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("not an RSA private key")
	}
	return priv, nil
}

func parsePublicPEM(b []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(b)
	if block == nil {
		return nil, errors.New("invalid PEM")
	}
	k, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	pub, ok := k.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("not an RSA public key")
	}
	return pub, nil
}
