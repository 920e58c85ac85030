package gateway_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	apperrors "github.com/frahmantamala/payment-lifecycle/internal"
	gatewaytypes "github.com/frahmantamala/payment-lifecycle/internal/core/datamodel/gateway"
	"github.com/frahmantamala/payment-lifecycle/internal/gateway"
)

var _ = Describe("PaylinkClient", func() {
	var client *gateway.PaylinkClient

	secret := []byte("0123456789abcdef0123456789abcdef")
	creds := gatewaytypes.TenantCredentials{
		AccountID: "acct-acme",
		PageCode:  "page-acme",
		Secret:    secret,
	}

	testLogger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	sign := func(body []byte, key []byte) string {
		mac := hmac.New(sha256.New, key)
		mac.Write(body)
		return hex.EncodeToString(mac.Sum(nil))
	}

	newClient := func(baseURL string) *gateway.PaylinkClient {
		return gateway.NewPaylinkClient(gateway.PaylinkConfig{
			BaseURL:        baseURL,
			RequestTimeout: 2 * time.Second,
			MaxRetries:     2,
		}, testLogger)
	}

	BeforeEach(func() {
		client = newClient("http://gateway.test")
	})

	Describe("VerifyCallback", func() {
		body := []byte(`{"transaction_code":"txn-1","outcome_code":200}`)

		It("accepts a body signed with the tenant secret", func() {
			headers := http.Header{}
			headers.Set(gateway.SignatureHeader, sign(body, secret))

			Expect(client.VerifyCallback(body, headers, creds)).To(BeTrue())
		})

		It("rejects a missing signature header", func() {
			Expect(client.VerifyCallback(body, http.Header{}, creds)).To(BeFalse())
		})

		It("rejects a signature that is not hex", func() {
			headers := http.Header{}
			headers.Set(gateway.SignatureHeader, "not-hex!")

			Expect(client.VerifyCallback(body, headers, creds)).To(BeFalse())
		})

		It("rejects a signature made with another tenant's secret", func() {
			headers := http.Header{}
			headers.Set(gateway.SignatureHeader, sign(body, []byte("another-tenant-secret-32-chars!!")))

			Expect(client.VerifyCallback(body, headers, creds)).To(BeFalse())
		})

		It("rejects a tampered body", func() {
			headers := http.Header{}
			headers.Set(gateway.SignatureHeader, sign(body, secret))

			tampered := []byte(`{"transaction_code":"txn-1","outcome_code":402}`)
			Expect(client.VerifyCallback(tampered, headers, creds)).To(BeFalse())
		})

		It("rejects early and late signature mismatches in comparable time", func() {
			valid := sign(body, secret)

			flip := func(s string, i int) string {
				b := []byte(s)
				if b[i] == 'f' {
					b[i] = '0'
				} else {
					b[i] = 'f'
				}
				return string(b)
			}

			medianReject := func(signature string) time.Duration {
				headers := http.Header{}
				headers.Set(gateway.SignatureHeader, signature)

				const samples = 301
				durations := make([]time.Duration, samples)
				for i := range durations {
					start := time.Now()
					Expect(client.VerifyCallback(body, headers, creds)).To(BeFalse())
					durations[i] = time.Since(start)
				}
				sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })
				return durations[samples/2]
			}

			firstByteWrong := medianReject(flip(valid, 0))
			lastByteWrong := medianReject(flip(valid, len(valid)-1))

			// the bound is deliberately loose; it only catches a gross
			// early-exit comparison, not scheduler noise
			ratio := float64(lastByteWrong) / float64(firstByteWrong)
			Expect(ratio).To(BeNumerically("<", 20))
			Expect(ratio).To(BeNumerically(">", 0.05))
		})
	})

	Describe("ParseCallback", func() {
		It("normalizes a 2xx outcome code to succeeded", func() {
			raw := []byte(`{"transaction_code":"txn-1","outcome_code":201,"amount":"250.00","occurred_at":"2026-03-01T12:00:00Z"}`)

			data, err := client.ParseCallback(raw)
			Expect(err).ToNot(HaveOccurred())
			Expect(data.ExternalCode).To(Equal("txn-1"))
			Expect(data.Outcome).To(Equal(gatewaytypes.OutcomeSucceeded))
			Expect(data.RawOutcomeCode).To(Equal(201))
			Expect(data.Amount.StringFixed(2)).To(Equal("250.00"))
			Expect(data.OccurredAt).To(Equal(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)))
			Expect(data.Raw).To(Equal(raw))
		})

		It("normalizes a 4xx outcome code to declined", func() {
			data, err := client.ParseCallback([]byte(`{"transaction_code":"txn-1","outcome_code":451,"failure_detail":"insufficient funds"}`))
			Expect(err).ToNot(HaveOccurred())
			Expect(data.Outcome).To(Equal(gatewaytypes.OutcomeDeclined))
			Expect(data.FailureDetail).To(Equal("insufficient funds"))
		})

		DescribeTable("codes outside the known families map to unknown",
			func(code int) {
				raw, err := json.Marshal(map[string]interface{}{
					"transaction_code": "txn-1",
					"outcome_code":     code,
				})
				Expect(err).ToNot(HaveOccurred())

				data, err := client.ParseCallback(raw)
				Expect(err).ToNot(HaveOccurred())
				Expect(data.Outcome).To(Equal(gatewaytypes.OutcomeUnknown))
			},
			Entry("zero", 0),
			Entry("1xx", 102),
			Entry("3xx", 301),
			Entry("5xx", 503),
			Entry("invented by a future gateway release", 737),
			Entry("negative", -1),
		)

		It("round-trips metadata untouched", func() {
			raw := []byte(`{"transaction_code":"txn-1","outcome_code":200,"metadata":{"subject_id":"inv-9","plan":"basic"}}`)

			data, err := client.ParseCallback(raw)
			Expect(err).ToNot(HaveOccurred())
			Expect(data.Metadata).To(Equal(map[string]string{"subject_id": "inv-9", "plan": "basic"}))
		})

		It("rejects a body that is not JSON", func() {
			_, err := client.ParseCallback([]byte(`{"transaction_code":`))
			Expect(err).To(HaveOccurred())
			appErr, ok := apperrors.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(apperrors.ErrCodeMalformedPayload))
		})

		It("keeps malformed-payload errors independent across concurrent deliveries", func() {
			errs := make([]error, 8)

			var wg sync.WaitGroup
			for i := range errs {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					defer GinkgoRecover()
					_, errs[i] = client.ParseCallback([]byte(`{"transaction_code":`))
				}(i)
			}
			wg.Wait()

			for _, err := range errs {
				appErr, ok := apperrors.IsAppError(err)
				Expect(ok).To(BeTrue())
				Expect(appErr.Code).To(Equal(apperrors.ErrCodeMalformedPayload))
				Expect(appErr.Cause).To(HaveOccurred())
				// each failure carries its own error value; the shared
				// sentinel must never be written to
				Expect(appErr).ToNot(BeIdenticalTo(apperrors.ErrMalformedPayload))
			}
			Expect(apperrors.ErrMalformedPayload.Cause).To(BeNil())
		})

		It("rejects a payload without a transaction code", func() {
			_, err := client.ParseCallback([]byte(`{"outcome_code":200}`))
			Expect(err).To(HaveOccurred())
		})

		It("defaults a missing occurred_at to now", func() {
			data, err := client.ParseCallback([]byte(`{"transaction_code":"txn-1","outcome_code":200}`))
			Expect(err).ToNot(HaveOccurred())
			Expect(data.OccurredAt).To(BeTemporally("~", time.Now().UTC(), time.Minute))
		})
	})

	Describe("CreateLink", func() {
		linkRequest := gatewaytypes.CreateLinkRequest{
			Amount:    decimal.RequireFromString("250.00"),
			Currency:  "EUR",
			Metadata:  map[string]string{"subject_id": "inv-1"},
			NotifyURL: "https://payments.example.com/api/v1/payments/callback/tok",
		}

		It("posts a signed request and returns the link result", func() {
			var gotBody []byte
			var gotSignature, gotAccount string

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				Expect(r.Method).To(Equal(http.MethodPost))
				Expect(r.URL.Path).To(Equal("/v1/payment-links"))

				gotBody, _ = io.ReadAll(r.Body)
				gotSignature = r.Header.Get(gateway.SignatureHeader)
				gotAccount = r.Header.Get("X-Paylink-Account")

				json.NewEncoder(w).Encode(map[string]interface{}{
					"transaction_code": "txn-42",
					"payment_url":      "https://pay.example.com/txn-42",
					"expires_at":       "2026-03-02T12:00:00Z",
				})
			}))
			defer server.Close()

			result, err := newClient(server.URL).CreateLink(context.Background(), linkRequest, creds)
			Expect(err).ToNot(HaveOccurred())
			Expect(result.ExternalCode).To(Equal("txn-42"))
			Expect(result.PaymentURL).To(Equal("https://pay.example.com/txn-42"))
			Expect(result.ExpiresAt).To(Equal(time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)))

			Expect(gotAccount).To(Equal("acct-acme"))
			Expect(gotSignature).To(Equal(sign(gotBody, secret)))

			var payload map[string]interface{}
			Expect(json.Unmarshal(gotBody, &payload)).To(Succeed())
			Expect(payload["account_id"]).To(Equal("acct-acme"))
			Expect(payload["page_code"]).To(Equal("page-acme"))
			Expect(payload["amount"]).To(Equal("250"))
			Expect(payload["notify_url"]).To(Equal(linkRequest.NotifyURL))
		})

		It("retries transient server errors and succeeds", func() {
			var calls int32

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if atomic.AddInt32(&calls, 1) == 1 {
					w.WriteHeader(http.StatusBadGateway)
					return
				}
				json.NewEncoder(w).Encode(map[string]interface{}{
					"transaction_code": "txn-43",
					"payment_url":      "https://pay.example.com/txn-43",
				})
			}))
			defer server.Close()

			result, err := newClient(server.URL).CreateLink(context.Background(), linkRequest, creds)
			Expect(err).ToNot(HaveOccurred())
			Expect(result.ExternalCode).To(Equal("txn-43"))
			Expect(atomic.LoadInt32(&calls)).To(Equal(int32(2)))
		})

		It("does not retry a definitive gateway rejection", func() {
			var calls int32

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				w.WriteHeader(http.StatusUnprocessableEntity)
			}))
			defer server.Close()

			_, err := newClient(server.URL).CreateLink(context.Background(), linkRequest, creds)
			Expect(err).To(HaveOccurred())
			Expect(atomic.LoadInt32(&calls)).To(Equal(int32(1)))
		})

		It("rejects a non-positive amount without calling the gateway", func() {
			var calls int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
			}))
			defer server.Close()

			bad := linkRequest
			bad.Amount = decimal.Zero

			_, err := newClient(server.URL).CreateLink(context.Background(), bad, creds)
			Expect(err).To(HaveOccurred())
			Expect(atomic.LoadInt32(&calls)).To(BeZero())
		})

		It("fails on a response missing the transaction code", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(map[string]interface{}{"payment_url": "https://pay.example.com/x"})
			}))
			defer server.Close()

			_, err := newClient(server.URL).CreateLink(context.Background(), linkRequest, creds)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("QueryStatus", func() {
		It("fetches and parses the gateway's current view", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				Expect(r.Method).To(Equal(http.MethodGet))
				Expect(r.URL.Path).To(Equal("/v1/payment-links/txn-7"))

				json.NewEncoder(w).Encode(map[string]interface{}{
					"transaction_code": "txn-7",
					"outcome_code":     402,
					"failure_detail":   "expired link",
				})
			}))
			defer server.Close()

			data, err := newClient(server.URL).QueryStatus(context.Background(), "txn-7", creds)
			Expect(err).ToNot(HaveOccurred())
			Expect(data.ExternalCode).To(Equal("txn-7"))
			Expect(data.Outcome).To(Equal(gatewaytypes.OutcomeDeclined))
			Expect(data.FailureDetail).To(Equal("expired link"))
		})
	})
})
