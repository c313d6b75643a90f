package payment

import (
	"context"
	"fmt"
)

// Provider 外部金流。引擎只在乎成功/失敗跟追蹤編號，
// 不處理任何供應商細節。
type Provider interface {
	Name() string
	// Init 建立付款，回傳結帳 URL
	Init(ctx context.Context, reference string, amount float64, currency string) (string, error)
	// Confirm 查詢付款結果
	Confirm(ctx context.Context, reference string) (bool, error)
	// Synchronous 付款是否當場完成（不需要等 webhook / worker）
	Synchronous() bool
}

// Registry 依名稱查 Provider
type Registry struct {
	providers map[string]Provider
}

func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider)}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}
	return r
}

func (r *Registry) Get(name string) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("unknown payment provider: %s", name)
	}
	return p, nil
}

// MockProvider 一律成功、同步完成，拿來本地開發跟測試
type MockProvider struct{}

func (MockProvider) Name() string { return "mock" }

func (MockProvider) Init(_ context.Context, reference string, _ float64, _ string) (string, error) {
	return "https://checkout.example.com/" + reference, nil
}

func (MockProvider) Confirm(_ context.Context, _ string) (bool, error) {
	return true, nil
}

func (MockProvider) Synchronous() bool { return true }

// HostedProvider 非同步供應商（paystack / stripe）。結帳 URL 立即可拿，
// 確認結果由 finalize worker 輪詢。真正的 API 呼叫不在這個引擎的範圍。
type HostedProvider struct {
	ProviderName string
	CheckoutBase string
}

func (p HostedProvider) Name() string { return p.ProviderName }

func (p HostedProvider) Init(_ context.Context, reference string, _ float64, _ string) (string, error) {
	return p.CheckoutBase + reference, nil
}

func (p HostedProvider) Confirm(_ context.Context, _ string) (bool, error) {
	// 佔位實作：正式環境換成供應商的 verify API
	return true, nil
}

func (p HostedProvider) Synchronous() bool { return false }
