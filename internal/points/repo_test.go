package points

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/GideonNut/moviemeter/internal/testutil"
)

func TestLazyCreationAndTotals(t *testing.T) {
	db := testutil.OpenTestDB(t)
	repo := NewRepo(db)
	ctx := context.Background()

	p, err := repo.Get(ctx, "0xnew")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if p != nil {
		t.Fatalf("expected nil record before first accrual, got %+v", p)
	}

	if err := repo.AddVotePoints(ctx, "0xnew", 10); err != nil {
		t.Fatalf("add vote points: %v", err)
	}
	if err := repo.AddCommentPoints(ctx, "0xnew", 5); err != nil {
		t.Fatalf("add comment points: %v", err)
	}

	p, err = repo.Get(ctx, "0xnew")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if p.VotePoints != 10 || p.CommentPoints != 5 || p.TotalPoints != 15 {
		t.Errorf("record = %+v, want 10/5/15", p)
	}
}

func TestNegativeAccrualRejected(t *testing.T) {
	db := testutil.OpenTestDB(t)
	repo := NewRepo(db)

	if err := repo.AddVotePoints(context.Background(), "0xa", -1); err == nil {
		t.Error("negative vote accrual should be rejected")
	}
	if err := repo.AddCommentPoints(context.Background(), "0xa", -1); err == nil {
		t.Error("negative comment accrual should be rejected")
	}
}

func TestConcurrentIncrementsDoNotLoseUpdates(t *testing.T) {
	db := testutil.OpenTestDB(t)
	repo := NewRepo(db)
	ctx := context.Background()

	const workers = 20
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := repo.AddVotePoints(ctx, "0xhot", 10); err != nil {
				t.Errorf("add: %v", err)
			}
		}()
	}
	wg.Wait()

	p, err := repo.Get(ctx, "0xhot")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if p.VotePoints != workers*10 {
		t.Errorf("vote points = %d, want %d", p.VotePoints, workers*10)
	}
	if p.TotalPoints != p.VotePoints+p.CommentPoints {
		t.Errorf("total %d != vote %d + comment %d", p.TotalPoints, p.VotePoints, p.CommentPoints)
	}
}

func TestLeaderboardOrder(t *testing.T) {
	db := testutil.OpenTestDB(t)
	repo := NewRepo(db)
	ctx := context.Background()

	repo.AddVotePoints(ctx, "0xsecond", 20)
	repo.AddVotePoints(ctx, "0xfirst", 30)
	repo.AddCommentPoints(ctx, "0xthird", 5)

	records, err := repo.Leaderboard(ctx, 10)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("records = %d, want 3", len(records))
	}
	want := []string{"0xfirst", "0xsecond", "0xthird"}
	for i, w := range want {
		if records[i].Address != w {
			t.Errorf("rank %d = %s, want %s", i, records[i].Address, w)
		}
	}
}

func TestHandlerDefaultZeroRecord(t *testing.T) {
	db := testutil.OpenTestDB(t)
	gin.SetMode(gin.TestMode)
	router := gin.New()
	NewHandler(NewRepo(db)).RegisterRoutes(router.Group("/points"))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/points?address=0xghost", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var resp struct {
		Success bool `json:"success"`
		Points  struct {
			Address     string `json:"address"`
			TotalPoints int64  `json:"total_points"`
		} `json:"points"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Success || resp.Points.Address != "0xghost" || resp.Points.TotalPoints != 0 {
		t.Errorf("response = %+v", resp)
	}
}

func TestHandlerLeaderboard(t *testing.T) {
	db := testutil.OpenTestDB(t)
	repo := NewRepo(db)
	repo.AddVotePoints(context.Background(), "0xa", 10)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	NewHandler(repo).RegisterRoutes(router.Group("/points"))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/points", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var resp struct {
		Success     bool              `json:"success"`
		Leaderboard []json.RawMessage `json:"leaderboard"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Success || len(resp.Leaderboard) != 1 {
		t.Errorf("response = %+v", resp)
	}
}
