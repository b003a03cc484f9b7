package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/solarvest/platform/internal/model"
)

func newKYCFixture(t *testing.T, kyc model.KYCStatus) (*KYCService, *fakeRecords) {
	t.Helper()
	store := newFakeRecords()
	store.investors["inv1"] = &model.Investor{ID: "inv1", TenantID: "t1", Status: model.InvestorActive, KYCStatus: kyc}
	return NewKYCService(store, testOptions()), store
}

func TestKYCCreateMovesInvestorToPending(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		from model.KYCStatus
		want model.KYCStatus
	}{
		{"not_started", model.KYCNotStarted, model.KYCPending},
		{"rejected", model.KYCRejected, model.KYCPending},
		{"verified_unchanged", model.KYCVerified, model.KYCVerified},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			svc, store := newKYCFixture(t, test.from)
			_, err := svc.Create(context.Background(), "t1", KYCInput{
				OwnerType:    model.KYCOwnerInvestor,
				OwnerID:      "inv1",
				DocumentType: model.DocPassport,
				FileURL:      "s3://kyc/passport.pdf",
			})
			if err != nil {
				t.Fatalf("create: %v", err)
			}
			if got := store.investors["inv1"].KYCStatus; got != test.want {
				t.Fatalf("expected investor kyc %s, got %s", test.want, got)
			}
		})
	}
}

func TestKYCReview(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("approve_verifies_investor", func(t *testing.T) {
		t.Parallel()
		svc, store := newKYCFixture(t, model.KYCPending)
		store.documents["d1"] = &model.KYCDocument{ID: "d1", TenantID: "t1", OwnerType: model.KYCOwnerInvestor, OwnerID: "inv1", DocumentType: model.DocPassport, FileURL: "f", Status: model.DocPending}

		d, err := svc.Review(ctx, "t1", "d1", "reviewer", model.KYCReview{Approve: true})
		if err != nil {
			t.Fatalf("review: %v", err)
		}
		if d.Status != model.DocApproved || d.ReviewedAt == nil || *d.ReviewedBy != "reviewer" {
			t.Fatalf("unexpected document %+v", d)
		}
		if got := store.investors["inv1"].KYCStatus; got != model.KYCVerified {
			t.Fatalf("expected investor verified, got %s", got)
		}

		if _, err := svc.Review(ctx, "t1", "d1", "reviewer", model.KYCReview{Approve: true}); !errors.Is(err, ErrAlreadyReviewed) {
			t.Fatalf("second review: expected already reviewed, got %v", err)
		}
	})

	t.Run("reject_requires_reason", func(t *testing.T) {
		t.Parallel()
		svc, store := newKYCFixture(t, model.KYCPending)
		store.documents["d1"] = &model.KYCDocument{ID: "d1", TenantID: "t1", OwnerType: model.KYCOwnerInvestor, OwnerID: "inv1", DocumentType: model.DocPassport, FileURL: "f", Status: model.DocPending}

		var verr model.ValidationErrors
		if _, err := svc.Review(ctx, "t1", "d1", "reviewer", model.KYCReview{}); !errors.As(err, &verr) {
			t.Fatalf("expected validation error, got %v", err)
		}
		if _, err := svc.Review(ctx, "t1", "d1", "reviewer", model.KYCReview{Reason: "blurry scan"}); err != nil {
			t.Fatalf("reject: %v", err)
		}
		if got := store.investors["inv1"].KYCStatus; got != model.KYCRejected {
			t.Fatalf("expected investor rejected, got %s", got)
		}
	})

	t.Run("expired_cannot_be_approved", func(t *testing.T) {
		t.Parallel()
		svc, store := newKYCFixture(t, model.KYCPending)
		past := time.Now().Add(-24 * time.Hour)
		store.documents["d1"] = &model.KYCDocument{ID: "d1", TenantID: "t1", OwnerType: model.KYCOwnerInvestor, OwnerID: "inv1", DocumentType: model.DocPassport, FileURL: "f", Status: model.DocPending, ExpiresAt: &past}

		var verr model.ValidationErrors
		if _, err := svc.Review(ctx, "t1", "d1", "reviewer", model.KYCReview{Approve: true}); !errors.As(err, &verr) {
			t.Fatalf("expected validation error, got %v", err)
		}
		if got := store.investors["inv1"].KYCStatus; got != model.KYCPending {
			t.Fatalf("expected investor unchanged, got %s", got)
		}
	})
}
