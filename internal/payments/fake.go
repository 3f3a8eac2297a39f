package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	pkgErrors "cinereserve/pkg/errors"
)

// FakeGateway is a deterministic in-process Gateway. References are issued
// as "fake-pidx-<n>"; verification answers whatever was scripted with
// SetStatus, defaulting to Pending.
type FakeGateway struct {
	mu sync.Mutex

	seq       int
	sessions  map[string]*InitiateResponse // idempotency key -> response
	requests  []InitiateRequest
	statuses  map[string]Status
	verifyErr map[string]error
	verified  map[string]int

	initiateErr error
}

func NewFakeGateway() *FakeGateway {
	return &FakeGateway{
		sessions:  make(map[string]*InitiateResponse),
		statuses:  make(map[string]Status),
		verifyErr: make(map[string]error),
		verified:  make(map[string]int),
	}
}

func (f *FakeGateway) Name() string {
	return "fake"
}

// FailInitiate makes subsequent Initiate calls fail with err; nil restores success.
func (f *FakeGateway) FailInitiate(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.initiateErr = err
}

// SetStatus scripts the verification outcome of reference.
func (f *FakeGateway) SetStatus(reference string, status Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[reference] = status
	delete(f.verifyErr, reference)
}

// FailVerify makes verification of reference return err.
func (f *FakeGateway) FailVerify(reference string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verifyErr[reference] = err
}

// Requests returns every initiate payload that created a new session.
func (f *FakeGateway) Requests() []InitiateRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]InitiateRequest(nil), f.requests...)
}

// VerifyCalls returns how often reference was verified.
func (f *FakeGateway) VerifyCalls(reference string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.verified[reference]
}

func (f *FakeGateway) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, pkgErrors.Gateway("initiate aborted", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.initiateErr != nil {
		return nil, pkgErrors.Gateway("fake initiate failed", f.initiateErr)
	}
	if req.IdempotencyKey != "" {
		if existing, ok := f.sessions[req.IdempotencyKey]; ok {
			resp := *existing
			return &resp, nil
		}
	}

	f.seq++
	reference := fmt.Sprintf("fake-pidx-%d", f.seq)
	resp := &InitiateResponse{
		Reference:  reference,
		PaymentURL: "https://pay.example.test/?pidx=" + reference,
	}
	if req.IdempotencyKey != "" {
		f.sessions[req.IdempotencyKey] = resp
	}
	f.requests = append(f.requests, req)
	f.statuses[reference] = StatusPending

	out := *resp
	return &out, nil
}

func (f *FakeGateway) Verify(ctx context.Context, reference string) (*VerifyResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, pkgErrors.GatewayAmbiguous("verify aborted", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.verified[reference]++
	if err, ok := f.verifyErr[reference]; ok {
		return nil, err
	}
	status, ok := f.statuses[reference]
	if !ok {
		return nil, pkgErrors.GatewayAmbiguous("unknown payment reference", nil)
	}

	raw, _ := json.Marshal(map[string]string{"pidx": reference, "status": string(status)})
	result := &VerifyResult{
		Reference: reference,
		Status:    status,
		RawStatus: string(status),
		Raw:       raw,
	}
	if status == StatusUnknown {
		return result, pkgErrors.GatewayAmbiguous("unrecognized status", nil)
	}
	return result, nil
}
