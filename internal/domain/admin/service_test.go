package admin

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/raypacs/raypacs/internal/platform/apperror"
	"github.com/raypacs/raypacs/internal/platform/auth"
)

// -- Mock repositories --

type mockLabRepo struct {
	labs map[uuid.UUID]*Lab
}

func newMockLabRepo() *mockLabRepo {
	return &mockLabRepo{labs: make(map[uuid.UUID]*Lab)}
}

func (m *mockLabRepo) Create(_ context.Context, l *Lab) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	cp := *l
	m.labs[l.ID] = &cp
	return nil
}

func (m *mockLabRepo) GetByID(_ context.Context, id uuid.UUID) (*Lab, error) {
	l, ok := m.labs[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *l
	return &cp, nil
}

func (m *mockLabRepo) GetByExternalID(_ context.Context, externalID string) (*Lab, error) {
	for _, l := range m.labs {
		if l.ExternalID == externalID {
			cp := *l
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *mockLabRepo) Update(_ context.Context, l *Lab) error {
	if _, ok := m.labs[l.ID]; !ok {
		return pgx.ErrNoRows
	}
	cp := *l
	m.labs[l.ID] = &cp
	return nil
}

func (m *mockLabRepo) List(_ context.Context, limit, offset int) ([]*Lab, int, error) {
	var items []*Lab
	for _, l := range m.labs {
		cp := *l
		items = append(items, &cp)
	}
	return items, len(items), nil
}

type mockDoctorRepo struct {
	doctors map[string]*DoctorProfile // keyed by user_id
}

func newMockDoctorRepo() *mockDoctorRepo {
	return &mockDoctorRepo{doctors: make(map[string]*DoctorProfile)}
}

func (m *mockDoctorRepo) Create(_ context.Context, d *DoctorProfile) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	cp := *d
	m.doctors[d.UserID] = &cp
	return nil
}

func (m *mockDoctorRepo) GetByID(_ context.Context, id uuid.UUID) (*DoctorProfile, error) {
	for _, d := range m.doctors {
		if d.ID == id {
			cp := *d
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *mockDoctorRepo) GetByUserID(_ context.Context, userID string) (*DoctorProfile, error) {
	d, ok := m.doctors[userID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *d
	return &cp, nil
}

func (m *mockDoctorRepo) Update(_ context.Context, d *DoctorProfile) error {
	for userID, existing := range m.doctors {
		if existing.ID == d.ID {
			cp := *d
			m.doctors[userID] = &cp
			return nil
		}
	}
	return pgx.ErrNoRows
}

func (m *mockDoctorRepo) List(_ context.Context, labID *uuid.UUID, limit, offset int) ([]*DoctorProfile, int, error) {
	var items []*DoctorProfile
	for _, d := range m.doctors {
		if labID != nil && (d.LabID == nil || *d.LabID != *labID) {
			continue
		}
		cp := *d
		items = append(items, &cp)
	}
	return items, len(items), nil
}

func newTestService() (*Service, *mockLabRepo, *mockDoctorRepo) {
	labs := newMockLabRepo()
	doctors := newMockDoctorRepo()
	return NewService(labs, doctors), labs, doctors
}

// -- Lab tests --

func TestCreateLab_GeneratesExternalID(t *testing.T) {
	svc, _, _ := newTestService()

	l := &Lab{Name: "City Imaging", TenantID: "acme"}
	if err := svc.CreateLab(context.Background(), l); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if l.ExternalID == "" {
		t.Error("expected generated external ID")
	}
	if !strings.HasPrefix(l.ExternalID, "LAB-") {
		t.Errorf("expected LAB- prefix, got %s", l.ExternalID)
	}
	if !l.Active {
		t.Error("expected new lab to be active")
	}
}

func TestCreateLab_RequiresName(t *testing.T) {
	svc, _, _ := newTestService()

	err := svc.CreateLab(context.Background(), &Lab{TenantID: "acme"})
	if apperror.KindOf(err) != apperror.InvalidArgument {
		t.Errorf("expected InvalidArgument, got %v", err)
	}
}

func TestGetLab_NotFound(t *testing.T) {
	svc, _, _ := newTestService()

	_, err := svc.GetLab(context.Background(), uuid.New())
	if apperror.KindOf(err) != apperror.NotFound {
		t.Errorf("expected NotFound, got %v", err)
	}
}

// -- DoctorProfile tests --

func TestCreateDoctorProfile_DefaultsRole(t *testing.T) {
	svc, _, _ := newTestService()

	d := &DoctorProfile{UserID: "u-1", FullName: "Dr. Rao", TenantID: "acme"}
	if err := svc.CreateDoctorProfile(context.Background(), d); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Role != auth.RoleRadiologist {
		t.Errorf("expected default radiologist role, got %s", d.Role)
	}
}

func TestCreateDoctorProfile_RejectsNonClinicianRole(t *testing.T) {
	svc, _, _ := newTestService()

	d := &DoctorProfile{UserID: "u-1", FullName: "Dr. Rao", Role: auth.RoleAdmin}
	err := svc.CreateDoctorProfile(context.Background(), d)
	if apperror.KindOf(err) != apperror.InvalidArgument {
		t.Errorf("expected InvalidArgument, got %v", err)
	}
}

func TestCreateDoctorProfile_RequiresUserID(t *testing.T) {
	svc, _, _ := newTestService()

	err := svc.CreateDoctorProfile(context.Background(), &DoctorProfile{FullName: "Dr. Rao"})
	if apperror.KindOf(err) != apperror.InvalidArgument {
		t.Errorf("expected InvalidArgument, got %v", err)
	}
}

// -- Verification resolution --

func TestResolveVerification_ORCombination(t *testing.T) {
	tests := []struct {
		name        string
		labFlag     bool
		doctorFlag  bool
		wantRequire bool
	}{
		{"neither", false, false, false},
		{"lab only", true, false, true},
		{"doctor only", false, true, true},
		{"both", true, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, labs, doctors := newTestService()
			lab := &Lab{Name: "Lab", TenantID: "acme", RequireReportVerification: tt.labFlag}
			labs.Create(context.Background(), lab)
			doctors.Create(context.Background(), &DoctorProfile{
				UserID: "doc-1", FullName: "Dr. Rao", Role: auth.RoleRadiologist,
				RequireReportVerification: tt.doctorFlag,
			})

			req, err := svc.ResolveVerification(context.Background(), &lab.ID, "doc-1")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if req.Required() != tt.wantRequire {
				t.Errorf("Required() = %v, want %v", req.Required(), tt.wantRequire)
			}
			if req.LabRequires != tt.labFlag {
				t.Errorf("LabRequires = %v, want %v", req.LabRequires, tt.labFlag)
			}
			if req.DoctorRequires != tt.doctorFlag {
				t.Errorf("DoctorRequires = %v, want %v", req.DoctorRequires, tt.doctorFlag)
			}
		})
	}
}

func TestResolveVerification_MissingLabAndDoctor(t *testing.T) {
	svc, _, _ := newTestService()

	missing := uuid.New()
	req, err := svc.ResolveVerification(context.Background(), &missing, "nobody")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Required() {
		t.Error("expected no verification requirement when neither record exists")
	}
}

func TestResolveVerification_NilLab(t *testing.T) {
	svc, _, doctors := newTestService()
	doctors.Create(context.Background(), &DoctorProfile{
		UserID: "doc-1", FullName: "Dr. Rao", Role: auth.RoleRadiologist,
		RequireReportVerification: true,
	})

	req, err := svc.ResolveVerification(context.Background(), nil, "doc-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !req.Required() {
		t.Error("expected doctor flag alone to require verification")
	}
}
