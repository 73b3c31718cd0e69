// Package sqlite provides SQLite-backed persistence for safety
// certificates. It implements the certify.Sink interface so the compiler
// can log directly to the database.
package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nav-lambda/safety.report/internal/certify"
)

// CertificateStore provides persistence for compiled safety certificates.
type CertificateStore struct {
	db *sql.DB
}

// NewCertificateStore creates a new CertificateStore.
func NewCertificateStore(db *sql.DB) *CertificateStore {
	return &CertificateStore{db: db}
}

const certificateColumns = `
	certificate_id, timestamp_ns, equation_id,
	h_safety, goal_proximity, model_intent, consciousness, p_score,
	barrier_value, barrier_derivative, margin,
	sim2val_estimate, sigma, status, verified, prev_hash, hash`

// Insert persists a certificate. If the ID is empty, a UUID is generated.
func (s *CertificateStore) Insert(cert *certify.Certificate) error {
	if cert.ID == "" {
		cert.ID = uuid.New().String()
	}
	if cert.Timestamp.IsZero() {
		cert.Timestamp = time.Now().UTC()
	}

	return retryOnBusy(func() error {
		_, err := s.db.Exec(`
			INSERT INTO certificates (`+certificateColumns+`
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			cert.ID, cert.Timestamp.UnixNano(), cert.EquationID,
			cert.HSafety, cert.GoalProximity, cert.ModelIntent, cert.Consciousness, cert.PScore,
			cert.BarrierValue, cert.BarrierDerivative, cert.Margin,
			cert.Sim2ValEstimate, cert.Sigma, cert.Status, cert.Verified, cert.PrevHash, cert.Hash,
		)
		return err
	})
}

// Append implements certify.Sink.
func (s *CertificateStore) Append(cert certify.Certificate) error {
	return s.Insert(&cert)
}

// List returns up to limit certificates in chronological order. A limit of
// 0 or less returns the full log.
func (s *CertificateStore) List(limit int) ([]*certify.Certificate, error) {
	q := `SELECT ` + certificateColumns + `
		FROM certificates
		ORDER BY timestamp_ns ASC, rowid ASC`
	var rows *sql.Rows
	var err error
	if limit > 0 {
		rows, err = s.db.Query(q+` LIMIT ?`, limit)
	} else {
		rows, err = s.db.Query(q)
	}
	if err != nil {
		return nil, fmt.Errorf("query certificates: %w", err)
	}
	defer rows.Close()

	var certs []*certify.Certificate
	for rows.Next() {
		c, err := scanCertificate(rows)
		if err != nil {
			return nil, err
		}
		certs = append(certs, c)
	}
	return certs, rows.Err()
}

// Get returns a single certificate by ID.
func (s *CertificateStore) Get(id string) (*certify.Certificate, error) {
	row := s.db.QueryRow(`SELECT `+certificateColumns+`
		FROM certificates
		WHERE certificate_id = ?`, id)

	c, err := scanCertificate(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("certificate %s not found", id)
		}
		return nil, err
	}
	return c, nil
}

// Last returns the most recently appended certificate, or nil if the log
// is empty. Used to resume the hash chain across restarts.
func (s *CertificateStore) Last() (*certify.Certificate, error) {
	row := s.db.QueryRow(`SELECT ` + certificateColumns + `
		FROM certificates
		ORDER BY timestamp_ns DESC, rowid DESC
		LIMIT 1`)

	c, err := scanCertificate(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return c, nil
}

// Count returns the total number of persisted certificates.
func (s *CertificateStore) Count() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM certificates`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count certificates: %w", err)
	}
	return n, nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanCertificate(row scanner) (*certify.Certificate, error) {
	var c certify.Certificate
	var ts int64
	err := row.Scan(
		&c.ID, &ts, &c.EquationID,
		&c.HSafety, &c.GoalProximity, &c.ModelIntent, &c.Consciousness, &c.PScore,
		&c.BarrierValue, &c.BarrierDerivative, &c.Margin,
		&c.Sim2ValEstimate, &c.Sigma, &c.Status, &c.Verified, &c.PrevHash, &c.Hash,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scan certificate: %w", err)
	}
	// Restore in UTC: the hash covers the marshaled timestamp, so a
	// host-local zone here would break chain verification on re-read.
	c.Timestamp = time.Unix(0, ts).UTC()
	return &c, nil
}
