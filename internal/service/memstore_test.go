package service

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"earnings-service/internal/apperr"
	"earnings-service/internal/commission"
	"earnings-service/internal/models"
	"earnings-service/internal/paymentprovider"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// memStore is an in-memory stand-in for the Postgres store with the same
// uniqueness rules: one order per session and one sale transaction per
// order item.
type memStore struct {
	mu sync.Mutex

	nextID      int64
	orders      map[int64]*models.Order
	items       []models.OrderItem
	sellers     map[string]*models.Seller
	wallets     map[string]*models.Wallet
	txs         []models.WalletTransaction
	diagnostics []models.DiagnosticRecord
	promoters   map[string]*models.Promoter

	// failure injection
	creditErr       error
	insertTxErr     error
	incrementErr    error
	setSalesErr     error
	findSaleErr     error
	itemErrFor      string
	promoterLookups int
	creditCalls     int
	updateCalls     int
}

func newMemStore() *memStore {
	return &memStore{
		orders:    make(map[int64]*models.Order),
		sellers:   make(map[string]*models.Seller),
		wallets:   make(map[string]*models.Wallet),
		promoters: make(map[string]*models.Promoter),
	}
}

func (m *memStore) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memStore) addSeller(id string, salesTotal int64) {
	m.sellers[id] = &models.Seller{ID: id, SalesTotal: salesTotal}
}

func (m *memStore) GetOrderBySessionID(_ context.Context, sessionID string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.SessionID == sessionID {
			c := *o
			return &c, nil
		}
	}
	return nil, nil
}

func (m *memStore) CreateOrder(_ context.Context, order *models.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.SessionID == order.SessionID {
			return apperr.New(apperr.KindDuplicate, "store.CreateOrder", "session %s exists", order.SessionID)
		}
	}
	order.ID = m.id()
	c := *order
	m.orders[order.ID] = &c
	return nil
}

func (m *memStore) CreateOrderItem(_ context.Context, item *models.OrderItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.itemErrFor != "" && item.ProductID == m.itemErrFor {
		return apperr.New(apperr.KindPersistence, "store.CreateOrderItem", "insert failed")
	}
	item.ID = m.id()
	m.items = append(m.items, *item)
	return nil
}

func (m *memStore) UpdateOrderStatusByPaymentIntent(_ context.Context, paymentIntentID, status string) (matched, changed int64, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.PaymentIntentID != paymentIntentID {
			continue
		}
		matched++
		if o.Status != status {
			o.Status = status
			changed++
		}
	}
	return matched, changed, nil
}

func (m *memStore) GetOrderByID(_ context.Context, id int64) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "store.GetOrderByID", "order not found: %d", id)
	}
	c := *o
	return &c, nil
}

func (m *memStore) GetOrderItemsByOrderID(_ context.Context, orderID int64) ([]models.OrderItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.OrderItem
	for _, it := range m.items {
		if it.OrderID == orderID {
			out = append(out, it)
		}
	}
	return out, nil
}

func (m *memStore) GetSeller(_ context.Context, id string) (*models.Seller, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sellers[id]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "store.GetSeller", "seller not found: %s", id)
	}
	c := *s
	return &c, nil
}

func (m *memStore) IncrementSalesTotal(_ context.Context, sellerID string, amount int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.incrementErr != nil {
		return 0, m.incrementErr
	}
	s, ok := m.sellers[sellerID]
	if !ok {
		return 0, apperr.New(apperr.KindPersistence, "store.IncrementSalesTotal", "seller not found: %s", sellerID)
	}
	s.SalesTotal += amount
	return s.SalesTotal, nil
}

func (m *memStore) SetSalesTotal(_ context.Context, sellerID string, total int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setSalesErr != nil {
		return m.setSalesErr
	}
	s, ok := m.sellers[sellerID]
	if !ok {
		return apperr.New(apperr.KindNotFound, "store.SetSalesTotal", "seller not found: %s", sellerID)
	}
	s.SalesTotal = total
	return nil
}

func (m *memStore) walletLocked(userID string) *models.Wallet {
	w, ok := m.wallets[userID]
	if !ok {
		w = &models.Wallet{ID: m.id(), UserID: userID}
		m.wallets[userID] = w
	}
	return w
}

func (m *memStore) GetWalletByUserID(_ context.Context, userID string) (*models.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.wallets[userID]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "store.GetWalletByUserID", "wallet not found: %s", userID)
	}
	c := *w
	return &c, nil
}

func (m *memStore) GetOrCreateWallet(_ context.Context, userID string) (*models.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *m.walletLocked(userID)
	return &c, nil
}

func (m *memStore) saleExistsLocked(tx models.WalletTransaction) bool {
	if tx.Type != models.TransactionTypeSale || tx.OrderItemID == nil {
		return false
	}
	for _, existing := range m.txs {
		if existing.Type == models.TransactionTypeSale && existing.OrderItemID != nil && *existing.OrderItemID == *tx.OrderItemID {
			return true
		}
	}
	return false
}

func (m *memStore) CreditWallet(_ context.Context, credit models.WalletCredit) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creditCalls++
	if m.creditErr != nil {
		return 0, m.creditErr
	}
	w := m.walletLocked(credit.UserID)
	tx := models.WalletTransaction{
		ID:          m.id(),
		WalletID:    w.ID,
		UserID:      credit.UserID,
		Type:        credit.Type,
		Amount:      credit.Amount,
		Status:      models.TransactionStatusCompleted,
		OrderID:     credit.OrderID,
		OrderItemID: credit.OrderItemID,
		Description: credit.Description,
	}
	if m.saleExistsLocked(tx) {
		return 0, apperr.New(apperr.KindDuplicate, "store.CreditWallet", "sale already credited")
	}
	w.Balance += credit.Amount
	w.TotalEarnings += credit.Amount
	m.txs = append(m.txs, tx)
	return tx.ID, nil
}

func (m *memStore) UpdateWalletBalances(_ context.Context, wallet *models.Wallet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateCalls++
	w := m.walletLocked(wallet.UserID)
	w.Balance = wallet.Balance
	w.TotalEarnings = wallet.TotalEarnings
	return nil
}

func (m *memStore) InsertWalletTransaction(_ context.Context, tx *models.WalletTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertTxErr != nil {
		return m.insertTxErr
	}
	if m.saleExistsLocked(*tx) {
		return apperr.New(apperr.KindDuplicate, "store.InsertWalletTransaction", "sale already credited")
	}
	tx.ID = m.id()
	tx.Status = models.TransactionStatusCompleted
	m.txs = append(m.txs, *tx)
	return nil
}

func (m *memStore) FindSaleTransaction(_ context.Context, orderItemID int64) (*models.WalletTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findSaleErr != nil {
		return nil, m.findSaleErr
	}
	for _, tx := range m.txs {
		if tx.Type == models.TransactionTypeSale && tx.OrderItemID != nil && *tx.OrderItemID == orderItemID {
			c := tx
			return &c, nil
		}
	}
	return nil, nil
}

func (m *memStore) RecordDiagnostic(_ context.Context, rec *models.DiagnosticRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec.ID = m.id()
	m.diagnostics = append(m.diagnostics, *rec)
	return nil
}

func (m *memStore) GetPromoterByReferralCode(_ context.Context, code string) (*models.Promoter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.promoterLookups++
	p, ok := m.promoters[code]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "store.GetPromoterByReferralCode", "no promoter for %q", code)
	}
	c := *p
	return &c, nil
}

func (m *memStore) transactionsOfType(txType string) []models.WalletTransaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.WalletTransaction
	for _, tx := range m.txs {
		if tx.Type == txType {
			out = append(out, tx)
		}
	}
	return out
}

func (m *memStore) balance(userID string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if w, ok := m.wallets[userID]; ok {
		return w.Balance
	}
	return 0
}

type memMarkers struct {
	mu      sync.Mutex
	marked  map[string]int64
	lookErr error
}

func newMemMarkers() *memMarkers {
	return &memMarkers{marked: make(map[string]int64)}
}

func (m *memMarkers) IsSessionProcessed(_ context.Context, sessionID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lookErr != nil {
		return false, m.lookErr
	}
	_, ok := m.marked[sessionID]
	return ok, nil
}

func (m *memMarkers) MarkSessionProcessed(_ context.Context, sessionID string, orderID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.marked[sessionID] = orderID
	return nil
}

type recordingPublisher struct {
	mu           sync.Mutex
	materialized []*models.OrderMaterializedEvent
	credited     []*models.EarningsCreditedEvent
	alerts       []*models.LedgerAlertEvent
}

func (p *recordingPublisher) PublishOrderMaterialized(_ context.Context, e *models.OrderMaterializedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.materialized = append(p.materialized, e)
	return nil
}

func (p *recordingPublisher) PublishEarningsCredited(_ context.Context, e *models.EarningsCreditedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.credited = append(p.credited, e)
	return nil
}

func (p *recordingPublisher) PublishLedgerAlert(_ context.Context, e *models.LedgerAlertEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.alerts = append(p.alerts, e)
	return nil
}

const validSignature = "t=1,v1=ok"

// fakeProvider accepts validSignature and serves canned line items.
type fakeProvider struct {
	lineItems map[string][]paymentprovider.LineItem
	listErr   error
	listCalls int
}

func (p *fakeProvider) VerifyEvent(payload []byte, signature string) (paymentprovider.Event, error) {
	if signature != validSignature {
		return nil, apperr.New(apperr.KindAuthentication, "fakeProvider.VerifyEvent", "signature mismatch")
	}
	return paymentprovider.ParseEvent(payload)
}

func (p *fakeProvider) ListLineItems(_ context.Context, sessionID string) ([]paymentprovider.LineItem, error) {
	p.listCalls++
	if p.listErr != nil {
		return nil, p.listErr
	}
	return p.lineItems[sessionID], nil
}

type harness struct {
	store      *memStore
	markers    *memMarkers
	publisher  *recordingPublisher
	provider   *fakeProvider
	ledger     *EarningsLedger
	sales      *SalesAccumulator
	referrals  *ReferralService
	dispatcher *Dispatcher
	logs       *observer.ObservedLogs
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core)

	st := newMemStore()
	markers := newMemMarkers()
	pub := &recordingPublisher{}
	provider := &fakeProvider{lineItems: make(map[string][]paymentprovider.LineItem)}

	guard := NewIdempotencyGuard(st, markers)
	guard.logger = logger
	materializer := NewOrderMaterializer(st, st, commission.DefaultTable)
	materializer.logger = logger
	ledger := NewEarningsLedger(st, st, pub)
	ledger.logger = logger
	sales := NewSalesAccumulator(st, st)
	sales.logger = logger
	referrals := NewReferralService(st, ledger, 10)
	referrals.logger = logger

	d := NewDispatcher(DispatcherDeps{
		Provider:        provider,
		Orders:          st,
		Guard:           guard,
		Materializer:    materializer,
		Ledger:          ledger,
		Sales:           sales,
		Referrals:       referrals,
		Publisher:       pub,
		AmountTolerance: 1,
	})
	d.logger = logger

	return &harness{
		store:      st,
		markers:    markers,
		publisher:  pub,
		provider:   provider,
		ledger:     ledger,
		sales:      sales,
		referrals:  referrals,
		dispatcher: d,
		logs:       logs,
	}
}

// logsWithKind returns the entries carrying error_kind=kind.
func logsWithKind(logs *observer.ObservedLogs, kind apperr.Kind) []observer.LoggedEntry {
	return logs.Filter(func(e observer.LoggedEntry) bool {
		v, ok := e.ContextMap()["error_kind"]
		return ok && v == kind.String()
	}).All()
}

func checkoutPayload(eventID, sessionID string, total int64, referralCode string) []byte {
	metadata := "{}"
	if referralCode != "" {
		metadata = fmt.Sprintf(`{"referral_code": %q}`, referralCode)
	}
	return []byte(fmt.Sprintf(`{
		"id": %q,
		"type": "checkout.session.completed",
		"data": {"object": {
			"id": %q,
			"amount_total": %d,
			"currency": "usd",
			"customer_email": "buyer@example.com",
			"payment_intent": "pi_%s",
			"payment_status": "paid",
			"metadata": %s
		}}
	}`, eventID, sessionID, total, sessionID, metadata))
}

func lineItem(id, productID, sellerID string, amount int64) paymentprovider.LineItem {
	return paymentprovider.LineItem{
		ID:          id,
		ProductID:   productID,
		SellerID:    sellerID,
		Quantity:    1,
		UnitAmount:  amount,
		AmountTotal: amount,
	}
}
