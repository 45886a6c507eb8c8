package identity

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/raypacs/raypacs/internal/platform/apperror"
)

type mockPatientRepo struct {
	patients map[string]*Patient // keyed by tenant/external
}

func newMockPatientRepo() *mockPatientRepo {
	return &mockPatientRepo{patients: make(map[string]*Patient)}
}

func patientKey(tenantID, externalID string) string { return tenantID + "/" + externalID }

func (m *mockPatientRepo) Upsert(_ context.Context, p *Patient) error {
	key := patientKey(p.TenantID, p.ExternalID)
	if existing, ok := m.patients[key]; ok {
		p.ID = existing.ID
	} else if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	cp := *p
	m.patients[key] = &cp
	return nil
}

func (m *mockPatientRepo) GetByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	for _, p := range m.patients {
		if p.ID == id {
			cp := *p
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *mockPatientRepo) GetByExternalID(_ context.Context, tenantID, externalID string) (*Patient, error) {
	p, ok := m.patients[patientKey(tenantID, externalID)]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *p
	return &cp, nil
}

func (m *mockPatientRepo) SetWorkflowStatus(_ context.Context, id uuid.UUID, status string) error {
	for _, p := range m.patients {
		if p.ID == id {
			s := status
			p.LastWorkflowStatus = &s
			return nil
		}
	}
	return pgx.ErrNoRows
}

func (m *mockPatientRepo) List(_ context.Context, limit, offset int) ([]*Patient, int, error) {
	var items []*Patient
	for _, p := range m.patients {
		cp := *p
		items = append(items, &cp)
	}
	return items, len(items), nil
}

func TestUpsertPatient_CreatesAndReuses(t *testing.T) {
	repo := newMockPatientRepo()
	svc := NewService(repo)

	p1 := &Patient{ExternalID: "PAT-1", TenantID: "acme", FullName: "Jane Roe"}
	if err := svc.UpsertPatient(context.Background(), p1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	p2 := &Patient{ExternalID: "PAT-1", TenantID: "acme", FullName: "Jane R. Roe"}
	if err := svc.UpsertPatient(context.Background(), p2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if p1.ID != p2.ID {
		t.Errorf("expected second upsert to reuse row, got %s and %s", p1.ID, p2.ID)
	}
	got, err := svc.GetPatientByExternalID(context.Background(), "acme", "PAT-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.FullName != "Jane R. Roe" {
		t.Errorf("expected updated name, got %s", got.FullName)
	}
}

func TestUpsertPatient_Validation(t *testing.T) {
	svc := NewService(newMockPatientRepo())

	err := svc.UpsertPatient(context.Background(), &Patient{TenantID: "acme", FullName: "Jane"})
	if apperror.KindOf(err) != apperror.InvalidArgument {
		t.Errorf("expected InvalidArgument for missing external_id, got %v", err)
	}

	err = svc.UpsertPatient(context.Background(), &Patient{TenantID: "acme", ExternalID: "PAT-1"})
	if apperror.KindOf(err) != apperror.InvalidArgument {
		t.Errorf("expected InvalidArgument for missing full_name, got %v", err)
	}
}

func TestUpsertPatient_TenantScoped(t *testing.T) {
	repo := newMockPatientRepo()
	svc := NewService(repo)

	pa := &Patient{ExternalID: "PAT-1", TenantID: "acme", FullName: "Jane Roe"}
	pb := &Patient{ExternalID: "PAT-1", TenantID: "globex", FullName: "Jane Roe"}
	svc.UpsertPatient(context.Background(), pa)
	svc.UpsertPatient(context.Background(), pb)

	if pa.ID == pb.ID {
		t.Error("expected distinct patient rows per tenant")
	}
}

func TestGetPatient_NotFound(t *testing.T) {
	svc := NewService(newMockPatientRepo())

	_, err := svc.GetPatientByExternalID(context.Background(), "acme", "PAT-404")
	if apperror.KindOf(err) != apperror.NotFound {
		t.Errorf("expected NotFound, got %v", err)
	}
}
