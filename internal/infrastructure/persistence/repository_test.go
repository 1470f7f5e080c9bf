package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/erp/platform/internal/domain/schema"
	"github.com/erp/platform/internal/domain/shared"
	"github.com/erp/platform/internal/infrastructure/config"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var (
	testActor = shared.NewUserActor(uuid.MustParse("11111111-1111-1111-1111-111111111111"))
	testNow   = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
)

func setupCoreTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := NewDatabase(&config.DatabaseConfig{Driver: "sqlite", Path: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate())
	t.Cleanup(func() { _ = db.Close() })
	return db.DB
}

func createTestOrganization(t *testing.T, db *gorm.DB, code string) *schema.Organization {
	t.Helper()
	org, err := schema.NewOrganization("Org "+code, code, schema.OrganizationSettings{BaseCurrency: "EUR"}, testActor, testNow)
	require.NoError(t, err)
	require.NoError(t, NewGormOrganizationRepository(db).Create(context.Background(), org))
	return org
}

func createTestEntity(t *testing.T, db *gorm.DB, orgID uuid.UUID, entityType, code string) *schema.Entity {
	t.Helper()
	e, err := schema.NewEntity(orgID, entityType, "Entity "+code, code, "HERA.TEST."+entityType+".ITEM.v1", nil, testActor, testNow)
	require.NoError(t, err)
	require.NoError(t, NewGormEntityRepository(db).Create(context.Background(), e))
	return e
}

func TestOrganizationRepository(t *testing.T) {
	db := setupCoreTestDB(t)
	repo := NewGormOrganizationRepository(db)
	ctx := context.Background()

	org := createTestOrganization(t, db, "ACME")

	t.Run("finds by id and code", func(t *testing.T) {
		byID, err := repo.FindByID(ctx, org.ID)
		require.NoError(t, err)
		assert.Equal(t, "ACME", byID.Code)
		assert.Equal(t, "EUR", byID.Settings.BaseCurrency)

		byCode, err := repo.FindByCode(ctx, "acme")
		require.NoError(t, err)
		assert.Equal(t, org.ID, byCode.ID)
	})

	t.Run("duplicate code is ALREADY_EXISTS", func(t *testing.T) {
		dup, err := schema.NewOrganization("Other", "acme", schema.OrganizationSettings{}, testActor, testNow)
		require.NoError(t, err)
		err = repo.Create(ctx, dup)
		assert.ErrorIs(t, err, shared.ErrAlreadyExists)
		assert.False(t, shared.IsRetryable(err))
	})

	t.Run("missing organization is NOT_FOUND", func(t *testing.T) {
		_, err := repo.FindByID(ctx, uuid.New())
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("update is optimistic", func(t *testing.T) {
		current, err := repo.FindByID(ctx, org.ID)
		require.NoError(t, err)
		stale := *current

		threshold := decimal.NewFromInt(500)
		require.NoError(t, current.UpdateSettings(schema.OrganizationSettings{ImmediatePostingThreshold: &threshold}, testActor, testNow.Add(time.Minute)))
		require.NoError(t, repo.Update(ctx, current))

		settings, err := repo.Settings(ctx, org.ID)
		require.NoError(t, err)
		require.NotNil(t, settings.ImmediatePostingThreshold)
		assert.True(t, threshold.Equal(*settings.ImmediatePostingThreshold))

		require.NoError(t, stale.ChangeStatus(schema.OrgStatusSuspended, testActor, testNow.Add(2*time.Minute)))
		assert.ErrorIs(t, repo.Update(ctx, &stale), shared.ErrConcurrencyConflict)
	})

	t.Run("lists with search", func(t *testing.T) {
		createTestOrganization(t, db, "GLOBEX")
		orgs, total, err := repo.FindAll(ctx, shared.Filter{Search: "GLOB", Page: 1, PageSize: 10})
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
		require.Len(t, orgs, 1)
		assert.Equal(t, "GLOBEX", orgs[0].Code)
	})
}

func TestEntityRepository(t *testing.T) {
	db := setupCoreTestDB(t)
	repo := NewGormEntityRepository(db)
	ctx := context.Background()

	org := createTestOrganization(t, db, "ACME")
	other := createTestOrganization(t, db, "OTHER")
	customer := createTestEntity(t, db, org.ID, "CUSTOMER", "C-001")
	createTestEntity(t, db, org.ID, "GL_ACCOUNT", "4000")

	t.Run("code is unique per organization and type", func(t *testing.T) {
		dup, err := schema.NewEntity(org.ID, "CUSTOMER", "Dup", "C-001", "HERA.TEST.CUSTOMER.ITEM.v1", nil, testActor, testNow)
		require.NoError(t, err)
		assert.ErrorIs(t, repo.Create(ctx, dup), shared.ErrAlreadyExists)

		sameCodeOtherOrg, err := schema.NewEntity(other.ID, "CUSTOMER", "Other", "C-001", "HERA.TEST.CUSTOMER.ITEM.v1", nil, testActor, testNow)
		require.NoError(t, err)
		assert.NoError(t, repo.Create(ctx, sameCodeOtherOrg))
	})

	t.Run("entities without code do not collide", func(t *testing.T) {
		for i := 0; i < 2; i++ {
			e, err := schema.NewEntity(org.ID, "NOTE", "Note", "", "HERA.TEST.NOTE.ITEM.v1", nil, testActor, testNow)
			require.NoError(t, err)
			require.NoError(t, repo.Create(ctx, e))
		}
	})

	t.Run("lookups are scoped to the organization", func(t *testing.T) {
		_, err := repo.FindByID(ctx, other.ID, customer.ID)
		assert.ErrorIs(t, err, shared.ErrNotFound)

		found, err := repo.FindByCode(ctx, org.ID, "customer", "C-001")
		require.NoError(t, err)
		assert.Equal(t, customer.ID, found.ID)
	})

	t.Run("filters by type and smart code prefix", func(t *testing.T) {
		list, total, err := repo.FindAll(ctx, org.ID, schema.EntityFilter{EntityType: "GL_ACCOUNT"})
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
		require.Len(t, list, 1)
		assert.Equal(t, "4000", list[0].Code)

		list, _, err = repo.FindAll(ctx, org.ID, schema.EntityFilter{SmartCodePrefix: "HERA.TEST.CUSTOMER"})
		require.NoError(t, err)
		assert.Len(t, list, 1)
	})
}

func TestAttributeRepository_Upsert(t *testing.T) {
	db := setupCoreTestDB(t)
	repo := NewGormAttributeRepository(db)
	ctx := context.Background()

	org := createTestOrganization(t, db, "ACME")
	product := createTestEntity(t, db, org.ID, "PRODUCT", "P-1")

	first, err := schema.NewDynamicAttribute(org.ID, product.ID, "Price", schema.ValueTypeNumber,
		schema.NumberValue(decimal.RequireFromString("9.99")), "HERA.TEST.PRODUCT.PRICE.v1", testActor, testNow)
	require.NoError(t, err)
	require.NoError(t, repo.Upsert(ctx, first))

	second, err := schema.NewDynamicAttribute(org.ID, product.ID, "price", schema.ValueTypeNumber,
		schema.NumberValue(decimal.RequireFromString("12.50")), "HERA.TEST.PRODUCT.PRICE.v1", testActor, testNow.Add(time.Hour))
	require.NoError(t, err)
	require.NoError(t, repo.Upsert(ctx, second))

	attrs, err := repo.FindByEntity(ctx, org.ID, product.ID)
	require.NoError(t, err)
	require.Len(t, attrs, 1)
	require.NotNil(t, attrs[0].Value.Number)
	assert.True(t, decimal.RequireFromString("12.5").Equal(*attrs[0].Value.Number))
	assert.Nil(t, attrs[0].Value.Text)

	found, err := repo.FindByField(ctx, org.ID, product.ID, "price")
	require.NoError(t, err)
	assert.Equal(t, schema.ValueTypeNumber, found.ValueType)

	_, err = repo.FindByField(ctx, org.ID, product.ID, "colour")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestRelationshipRepository(t *testing.T) {
	db := setupCoreTestDB(t)
	repo := NewGormRelationshipRepository(db)
	ctx := context.Background()

	org := createTestOrganization(t, db, "ACME")
	parent := createTestEntity(t, db, org.ID, "GL_ACCOUNT", "1000")
	child := createTestEntity(t, db, org.ID, "GL_ACCOUNT", "1100")

	rel, err := schema.NewRelationship(org.ID, child.ID, parent.ID, "PARENT_OF", "HERA.TEST.REL.PARENT.v1", nil, testActor, testNow)
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, rel))

	rels, err := repo.FindByEntity(ctx, org.ID, parent.ID, true)
	require.NoError(t, err)
	require.Len(t, rels, 1)

	require.NoError(t, rel.Deactivate(testActor, testNow.Add(time.Minute)))
	require.NoError(t, repo.Update(ctx, rel))

	rels, err = repo.FindByEntity(ctx, org.ID, parent.ID, true)
	require.NoError(t, err)
	assert.Empty(t, rels)

	rels, err = repo.FindByEntity(ctx, org.ID, child.ID, false)
	require.NoError(t, err)
	assert.Len(t, rels, 1)
}

func TestReferenceResolver(t *testing.T) {
	db := setupCoreTestDB(t)
	resolver := NewGormReferenceResolver(db)
	ctx := context.Background()

	org := createTestOrganization(t, db, "ACME")
	e := createTestEntity(t, db, org.ID, "CUSTOMER", "C-1")

	status, err := resolver.OrganizationStatus(ctx, org.ID)
	require.NoError(t, err)
	assert.Equal(t, schema.OrgStatusActive, status)

	_, err = resolver.OrganizationStatus(ctx, uuid.New())
	assert.ErrorIs(t, err, shared.ErrNotFound)

	unknown := uuid.New()
	owners, err := resolver.EntityOwners(ctx, []uuid.UUID{e.ID, unknown})
	require.NoError(t, err)
	assert.Equal(t, org.ID, owners[e.ID])
	_, ok := owners[unknown]
	assert.False(t, ok)
}
