// Package station tracks the charge point's connector states and the
// transactions running on them.
package station

import (
	"fmt"
	"sync"
	"time"

	"github.com/evsim/cpsim/core/logger"
	"github.com/evsim/cpsim/core/ocpp"
)

// Transaction is one charging session, keyed by the id the central
// system assigned in its StartTransaction response.
type Transaction struct {
	ID          int
	ConnectorID int
	IdTag       string
	MeterStart  int
	StartedAt   time.Time
}

// Connector is the observable state of one physical connector.
type Connector struct {
	ID     int
	Status ocpp.ChargePointStatus
}

// Station is the in-memory model of the simulated charge point.
type Station struct {
	mu           sync.RWMutex
	connectors   map[int]*Connector
	transactions map[int]*Transaction
	log          logger.Logger
}

// New builds a station with the given number of connectors, all
// Available. Connector ids run from 1 to count.
func New(count int, log logger.Logger) *Station {
	s := &Station{
		connectors:   make(map[int]*Connector, count),
		transactions: make(map[int]*Transaction),
		log:          log,
	}
	for i := 1; i <= count; i++ {
		s.connectors[i] = &Connector{ID: i, Status: ocpp.StatusAvailable}
	}
	return s
}

// Connectors returns the number of connectors.
func (s *Station) Connectors() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.connectors)
}

// Status returns a connector's current status.
func (s *Station) Status(connectorID int) (ocpp.ChargePointStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.connectors[connectorID]
	if !ok {
		return "", fmt.Errorf("unknown connector %d", connectorID)
	}
	return c.Status, nil
}

// SetStatus updates a connector's status, reporting whether it changed.
func (s *Station) SetStatus(connectorID int, status ocpp.ChargePointStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.connectors[connectorID]
	if !ok {
		return false, fmt.Errorf("unknown connector %d", connectorID)
	}
	if c.Status == status {
		return false, nil
	}
	s.log.Infof("connector %d: %s -> %s", connectorID, c.Status, status)
	c.Status = status
	return true, nil
}

// StartTransaction records a session on a connector. The connector must
// not already have one.
func (s *Station) StartTransaction(tx Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.connectors[tx.ConnectorID]; !ok {
		return fmt.Errorf("unknown connector %d", tx.ConnectorID)
	}
	for _, existing := range s.transactions {
		if existing.ConnectorID == tx.ConnectorID {
			return fmt.Errorf("connector %d already has transaction %d", tx.ConnectorID, existing.ID)
		}
	}
	t := tx
	s.transactions[t.ID] = &t
	s.log.Infof("transaction %d started on connector %d (idTag %s)", t.ID, t.ConnectorID, t.IdTag)
	return nil
}

// StopTransaction removes a session and returns it.
func (s *Station) StopTransaction(txID int) (Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.transactions[txID]
	if !ok {
		return Transaction{}, fmt.Errorf("unknown transaction %d", txID)
	}
	delete(s.transactions, txID)
	s.log.Infof("transaction %d stopped on connector %d", t.ID, t.ConnectorID)
	return *t, nil
}

// ActiveTransaction returns the transaction id running on a connector.
func (s *Station) ActiveTransaction(connectorID int) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.transactions {
		if t.ConnectorID == connectorID {
			return t.ID, true
		}
	}
	return 0, false
}

// IsTransactionActive reports whether the transaction id is running on
// any connector.
func (s *Station) IsTransactionActive(txID int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.transactions[txID]
	return ok
}

// Transaction returns a copy of a running transaction.
func (s *Station) Transaction(txID int) (Transaction, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if t, ok := s.transactions[txID]; ok {
		return *t, true
	}
	return Transaction{}, false
}

// ActiveTransactions lists every running transaction.
func (s *Station) ActiveTransactions() []Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Transaction, 0, len(s.transactions))
	for _, t := range s.transactions {
		out = append(out, *t)
	}
	return out
}

// Snapshot lists every connector's state, ordered by id.
func (s *Station) Snapshot() []Connector {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Connector, 0, len(s.connectors))
	for i := 1; i <= len(s.connectors); i++ {
		out = append(out, *s.connectors[i])
	}
	return out
}
