package maintenance

import (
	"bytes"
	"context"
	"encoding/csv"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/realisereallies/anime/internal/apperr"
	"github.com/realisereallies/anime/internal/auth"
	"github.com/realisereallies/anime/internal/testutil"
)

func TestImportSampleIsIdempotent(t *testing.T) {
	db := testutil.NewDB(t)

	res, err := ImportReviews(context.Background(), db, strings.NewReader(SampleReviews), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if res.UsersCreated != 1 || res.ReviewsCreated != 3 {
		t.Fatalf("unexpected result %+v", res)
	}

	again, err := ImportReviews(context.Background(), db, strings.NewReader(SampleReviews), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("second import: %v", err)
	}
	if again.UsersCreated != 0 || again.ReviewsCreated != 0 || again.Skipped != 3 {
		t.Fatalf("unexpected second result %+v", again)
	}
	if n := testutil.Count(t, db, `SELECT COUNT(*) FROM reviews`); n != 3 {
		t.Fatalf("expected 3 reviews, got %d", n)
	}

	u, err := auth.NewRepo(db).GetByEmail(context.Background(), "alexey@example.com")
	if err != nil || u == nil {
		t.Fatalf("seeded user missing: %v", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("password123")) != nil {
		t.Fatal("seeded password should be hashed and usable")
	}
}

func TestImportRejectsBadRatingAtomically(t *testing.T) {
	db := testutil.NewDB(t)
	in := "email,name,password,anime_title,title,body,rating\n" +
		"a@x.com,A,secret1,X,T,B,5\n" +
		"a@x.com,A,secret1,Y,T,B,9\n"

	if _, err := ImportReviews(context.Background(), db, strings.NewReader(in), bcrypt.MinCost); err == nil {
		t.Fatal("expected rating error")
	}
	if n := testutil.Count(t, db, `SELECT COUNT(*) FROM reviews`); n != 0 {
		t.Fatalf("expected rollback, got %d reviews", n)
	}
	if n := testutil.Count(t, db, `SELECT COUNT(*) FROM users`); n != 0 {
		t.Fatalf("expected rollback, got %d users", n)
	}
}

func TestImportUsesExistingUser(t *testing.T) {
	db := testutil.NewDB(t)
	u := testutil.CreateUser(t, db, "A", "a@x.com")

	in := "email,anime_title,title,body,rating,created_at\n" +
		"A@X.com,X,T,B,3,2024-05-01T10:00:00Z\n" +
		",X,T,B,3,\n"
	res, err := ImportReviews(context.Background(), db, strings.NewReader(in), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if res.UsersCreated != 0 || res.ReviewsCreated != 1 || res.Skipped != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	if n := testutil.Count(t, db, `SELECT COUNT(*) FROM reviews WHERE user_id = ?`, u.ID); n != 1 {
		t.Fatalf("expected review owned by existing user, got %d", n)
	}
}

func TestImportNewUserNeedsPassword(t *testing.T) {
	db := testutil.NewDB(t)
	in := "email,anime_title,title,body,rating\nnew@x.com,X,T,B,3\n"
	if _, err := ImportReviews(context.Background(), db, strings.NewReader(in), bcrypt.MinCost); err == nil {
		t.Fatal("expected missing password to fail")
	}
}

func TestExportRoundTrip(t *testing.T) {
	db := testutil.NewDB(t)
	if _, err := ImportReviews(context.Background(), db, strings.NewReader(SampleReviews), bcrypt.MinCost); err != nil {
		t.Fatalf("import: %v", err)
	}

	var buf bytes.Buffer
	n, err := ExportReviews(context.Background(), db, &buf)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 rows, got %d", n)
	}

	exported := buf.String()
	records, err := csv.NewReader(strings.NewReader(exported)).ReadAll()
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	if len(records) != 4 || strings.Join(records[0], ",") != strings.Join(exportHeader, ",") {
		t.Fatalf("unexpected export %v", records)
	}

	// exported rows import back as duplicates
	res, err := ImportReviews(context.Background(), db, strings.NewReader(exported), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("reimport: %v", err)
	}
	if res.ReviewsCreated != 0 {
		t.Fatalf("expected no new reviews, got %+v", res)
	}
}

func TestSetPassword(t *testing.T) {
	db := testutil.NewDB(t)
	u := testutil.CreateUser(t, db, "A", "a@x.com")

	if err := SetPassword(context.Background(), db, "a@x.com", "123", bcrypt.MinCost); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if err := SetPassword(context.Background(), db, "nobody@x.com", "secret1", bcrypt.MinCost); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := SetPassword(context.Background(), db, "A@x.com", "secret1", bcrypt.MinCost); err != nil {
		t.Fatalf("set password: %v", err)
	}

	got, _ := auth.NewRepo(db).GetByID(context.Background(), u.ID)
	if bcrypt.CompareHashAndPassword([]byte(got.PasswordHash), []byte("secret1")) != nil {
		t.Fatal("new password not stored")
	}
	if got.TokenVersion != u.TokenVersion+1 {
		t.Fatalf("expected token version bump, got %d", got.TokenVersion)
	}
}
