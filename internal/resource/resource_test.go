package resource

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/celerix-dev/celerix-ledger/internal/audit"
	"github.com/celerix-dev/celerix-ledger/internal/engine"
	"github.com/celerix-dev/celerix-ledger/internal/query"
	"github.com/celerix-dev/celerix-ledger/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type categoryController = Controller[schema.Category, schema.CategoryPatch, schema.CategoryPublic]

var errReserved = errors.New("reserved title")

var u1 = &schema.Identity{ID: "u1"}

func newCategories(t *testing.T) (*categoryController, *audit.Auditor) {
	t.Helper()
	return newCategoriesOn(t, engine.NewDocument(nil, nil, nil))
}

func newCategoriesOn(t *testing.T, doc *engine.Document) (*categoryController, *audit.Auditor) {
	t.Helper()
	a := audit.New(
		doc,
		audit.NewStepClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Second),
		nil,
	)
	_, err := a.Create(schema.Users, "u1", map[string]any{"name": "Alice"}, schema.SeedIdentity)
	require.NoError(t, err)

	ops := NewOperations(a, Definition[schema.Category, schema.CategoryPatch, schema.CategoryPublic]{
		Partition: schema.Categories,
		Public: func(id string, c schema.Category) schema.CategoryPublic {
			return schema.CategoryPublic{ID: id, Title: c.Title, Type: c.Type}
		},
		Select: query.Categories,
		ValidateCreate: func(c schema.Category) error {
			if c.Title == "Reserved" {
				return Invalid("title", errReserved)
			}
			return nil
		},
		ValidateUpdate: func(p schema.CategoryPatch) error {
			if p.Title != nil && *p.Title == "Reserved" {
				return Invalid("title", errReserved)
			}
			return nil
		},
	})
	return NewController(ops, nil), a
}

func draft(id, title string, typ schema.FlowType) *schema.Draft[schema.Category] {
	return &schema.Draft[schema.Category]{ID: id, Data: schema.Category{Title: title, Type: typ}}
}

func strp(s string) *string { return &s }

func TestCreateThenRead(t *testing.T) {
	c, _ := newCategories(t)

	created := c.Create(draft("food", "Food", schema.Expense), u1)
	require.True(t, created.OK, created.Reason)
	assert.Equal(t, &schema.CategoryPublic{ID: "food", Title: "Food", Type: schema.Expense}, created.Data)

	read := c.Read("food")
	require.True(t, read.OK, read.Reason)
	assert.Equal(t, created.Data, read.Data)
}

func TestCreate_GeneratesMissingID(t *testing.T) {
	c, _ := newCategories(t)
	c.newID = func() string { return "generated" }

	res := c.Create(draft("", "Food", schema.Expense), u1)
	require.True(t, res.OK, res.Reason)
	assert.Equal(t, "generated", res.Data.ID)
	assert.True(t, c.Exist("generated").Data)
}

func TestCreate_Rejections(t *testing.T) {
	c, a := newCategories(t)
	require.True(t, c.Create(draft("food", "Food", schema.Expense), u1).OK)

	tests := []struct {
		name  string
		draft *schema.Draft[schema.Category]
		actor *schema.Identity
		want  string
	}{
		{"missing payload", nil, u1, ErrInvalidParams.Error()},
		{"missing actor", draft("x", "X", schema.Expense), nil, ErrUnknownUser.Error()},
		{"anonymous actor", draft("x", "X", schema.Expense), &schema.Identity{}, ErrUnknownUser.Error()},
		{"duplicate id", draft("food", "Food", schema.Expense), u1, ErrAlreadyExist.Error()},
		{"missing title", draft("x", "", schema.Expense), u1, "invalid title"},
		{"bad type", draft("x", "X", "costs"), u1, "invalid type"},
		{"domain rule", draft("x", "Reserved", schema.Expense), u1, errReserved.Error()},
		{"actor not in users", draft("x", "X", schema.Expense), &schema.Identity{ID: "ghost"}, audit.ErrInvalidActor.Error()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := c.Create(tt.draft, tt.actor)
			assert.False(t, res.OK)
			assert.Nil(t, res.Data)
			assert.Contains(t, res.Reason, tt.want)
		})
	}

	assert.False(t, a.Document().Exists("/CATEGORIES/x"), "rejected creates persist nothing")
}

func TestCreate_ValidationReasonNamesField(t *testing.T) {
	c, _ := newCategories(t)
	res := c.Create(draft("x", "", schema.Expense), u1)
	assert.Equal(t, "invalid title: is required", res.Reason)
}

func TestRemove_Tombstone(t *testing.T) {
	c, a := newCategories(t)
	require.True(t, c.Create(draft("food", "Food", schema.Expense), u1).OK)

	removed := c.Remove("food", u1)
	require.True(t, removed.OK, removed.Reason)
	assert.Equal(t, "Food", removed.Data.Title)

	assert.Empty(t, c.List(query.Query{}).Data)
	assert.False(t, c.Exist("food").Data)

	read := c.Read("food")
	assert.False(t, read.OK)
	assert.Equal(t, ErrNotExist.Error(), read.Reason)

	// still visible to the store
	raw, err := a.Document().Get("/CATEGORIES/food")
	require.NoError(t, err)
	meta := raw.(map[string]any)["meta"].(map[string]any)
	assert.Equal(t, true, meta["deleted"])
	assert.Equal(t, "u1", meta["deletedBy"])

	again := c.Remove("food", u1)
	assert.False(t, again.OK)
	assert.Equal(t, ErrNotExist.Error(), again.Reason)
}

func TestCreate_AfterSoftDelete(t *testing.T) {
	c, a := newCategories(t)
	require.True(t, c.Create(draft("food", "Food", schema.Expense), u1).OK)
	require.True(t, c.Remove("food", u1).OK)

	res := c.Create(draft("food", "Groceries", schema.Expense), u1)
	require.True(t, res.OK, res.Reason)
	assert.Equal(t, "Groceries", c.Read("food").Data.Title)

	rec, err := a.Load(schema.Categories, "food")
	require.NoError(t, err)
	assert.False(t, rec.Meta.Deleted)
	assert.Empty(t, rec.Meta.DeletedBy)
}

func TestUpdate_MergesPartialPatches(t *testing.T) {
	stepwise, _ := newCategories(t)
	combined, _ := newCategories(t)
	for _, c := range []*categoryController{stepwise, combined} {
		require.True(t, c.Create(draft("food", "Food", schema.Expense), u1).OK)
	}

	income := schema.Income
	require.True(t, stepwise.Update("food", &schema.CategoryPatch{Title: strp("Salary")}, u1).OK)
	require.True(t, stepwise.Update("food", &schema.CategoryPatch{Type: &income}, u1).OK)
	require.True(t, combined.Update("food", &schema.CategoryPatch{Title: strp("Salary"), Type: &income}, u1).OK)

	assert.Equal(t, combined.Read("food").Data, stepwise.Read("food").Data)
	assert.Equal(t, &schema.CategoryPublic{ID: "food", Title: "Salary", Type: schema.Income}, stepwise.Read("food").Data)
}

func TestUpdate_StampsAndKeepsCreation(t *testing.T) {
	c, _ := newCategories(t)
	require.True(t, c.Create(draft("food", "Food", schema.Expense), u1).OK)
	before, err := c.Operations().Read("food")
	require.NoError(t, err)

	require.True(t, c.Update("food", &schema.CategoryPatch{Title: strp("Groceries")}, u1).OK)
	after, err := c.Operations().Read("food")
	require.NoError(t, err)

	assert.Equal(t, before.Meta.CreatedAt, after.Meta.CreatedAt)
	assert.Equal(t, "u1", after.Meta.UpdatedBy)
	assert.True(t, after.Meta.UpdatedAt.After(before.Meta.CreatedAt))
}

func TestUpdate_Rejections(t *testing.T) {
	c, _ := newCategories(t)
	require.True(t, c.Create(draft("food", "Food", schema.Expense), u1).OK)
	bad := schema.FlowType("costs")

	tests := []struct {
		name  string
		id    string
		patch *schema.CategoryPatch
		actor *schema.Identity
		want  string
	}{
		{"empty id", "", &schema.CategoryPatch{}, u1, ErrInvalidParams.Error()},
		{"missing payload", "food", nil, u1, ErrInvalidParams.Error()},
		{"missing actor", "food", &schema.CategoryPatch{}, nil, ErrUnknownUser.Error()},
		{"unknown record", "rent", &schema.CategoryPatch{}, u1, ErrNotExist.Error()},
		{"bad type", "food", &schema.CategoryPatch{Type: &bad}, u1, "invalid type"},
		{"empty title", "food", &schema.CategoryPatch{Title: strp("")}, u1, "invalid title"},
		{"domain rule", "food", &schema.CategoryPatch{Title: strp("Reserved")}, u1, errReserved.Error()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := c.Update(tt.id, tt.patch, tt.actor)
			assert.False(t, res.OK)
			assert.Contains(t, res.Reason, tt.want)
		})
	}

	assert.Equal(t, "Food", c.Read("food").Data.Title)
}

func TestList_OrderAndSelector(t *testing.T) {
	c, _ := newCategories(t)
	require.True(t, c.Create(draft("b", "B", schema.Expense), u1).OK)
	require.True(t, c.Create(draft("a", "A", schema.Income), u1).OK)
	require.True(t, c.Create(draft("c", "C", schema.Expense), u1).OK)

	all := c.List(query.Query{})
	require.True(t, all.OK)
	titles := func(ps []schema.CategoryPublic) []string {
		out := make([]string, 0, len(ps))
		for _, p := range ps {
			out = append(out, p.Title)
		}
		return out
	}
	assert.Equal(t, []string{"B", "A", "C"}, titles(all.Data))

	expenses := c.List(query.Query{ByType: "expense"})
	assert.Equal(t, []string{"B", "C"}, titles(expenses.Data))

	one := 1
	paged := c.List(query.Query{Offset: &one, Length: &one})
	assert.Equal(t, []string{"A"}, titles(paged.Data))
}

func TestList_EmptyPartition(t *testing.T) {
	c, _ := newCategories(t)
	res := c.List(query.Query{})
	assert.True(t, res.OK)
	assert.NotNil(t, res.Data)
	assert.Empty(t, res.Data)
}

func TestExist(t *testing.T) {
	c, _ := newCategories(t)
	require.True(t, c.Create(draft("food", "Food", schema.Expense), u1).OK)

	assert.Equal(t, schema.Result[bool]{OK: true, Data: true}, c.Exist("food"))
	assert.Equal(t, schema.Result[bool]{OK: true, Data: false}, c.Exist("rent"))
	assert.Equal(t, schema.Result[bool]{OK: true, Data: false}, c.Exist("a/b"))
	assert.Equal(t, schema.Result[bool]{OK: false, Reason: ErrInvalidParams.Error(), Data: false}, c.Exist(""))
}

func TestRead_InvalidParams(t *testing.T) {
	c, _ := newCategories(t)
	res := c.Read("")
	assert.False(t, res.OK)
	assert.Equal(t, ErrInvalidParams.Error(), res.Reason)
	assert.Nil(t, res.Data)
}

func TestStruct_ReportsNestedField(t *testing.T) {
	err := Struct(schema.Transaction{
		Type:         schema.Expense,
		UserID:       "u1",
		CategoryID:   "food",
		Date:         "2024-01-01",
		Expenditures: []schema.Expenditure{{}},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "expenditures[0].commodityId", verr.Field)
}

func TestStoreFailure_FoldedIntoResult(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	doc, _, err := engine.Open(filepath.Join(dir, "ledger.json"), nil)
	require.NoError(t, err)
	c, _ := newCategoriesOn(t, doc)
	require.True(t, c.Create(draft("food", "Food", schema.Expense), u1).OK)

	// the next flush cannot create its temp file
	require.NoError(t, os.RemoveAll(dir))

	results := map[string]schema.Result[*schema.CategoryPublic]{
		"create": c.Create(draft("tea", "Tea", schema.Expense), u1),
		"update": c.Update("food", &schema.CategoryPatch{Title: strp("Groceries")}, u1),
		"remove": c.Remove("food", u1),
	}
	for op, res := range results {
		assert.False(t, res.OK, op)
		assert.Contains(t, res.Reason, engine.ErrStoreFailure.Error(), op)
		assert.Nil(t, res.Data, op)
	}

	// failed writes were rolled back in memory
	list := c.List(query.Query{})
	require.True(t, list.OK)
	assert.Equal(t, []schema.CategoryPublic{{ID: "food", Title: "Food", Type: schema.Expense}}, list.Data)
}

func TestList_UnreadablePartition(t *testing.T) {
	c, a := newCategories(t)
	require.NoError(t, a.Document().Set("/CATEGORIES", "not a partition"))

	res := c.List(query.Query{})
	assert.False(t, res.OK)
	assert.NotEmpty(t, res.Reason)
	assert.Equal(t, []schema.CategoryPublic{}, res.Data)
}

func TestCreate_ConcurrentSameID(t *testing.T) {
	c, _ := newCategories(t)

	const writers = 8
	var wg sync.WaitGroup
	results := make([]schema.Result[*schema.CategoryPublic], writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = c.Create(draft("food", "Food", schema.Expense), u1)
		}(i)
	}
	wg.Wait()

	created := 0
	for _, res := range results {
		if res.OK {
			created++
			continue
		}
		assert.Equal(t, ErrAlreadyExist.Error(), res.Reason)
	}
	assert.Equal(t, 1, created)
}
