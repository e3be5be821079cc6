package repository_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	"github.com/helixa-health/scribe/pkg/domain/interfaces"
	"github.com/helixa-health/scribe/pkg/domain/model"
	"github.com/helixa-health/scribe/pkg/domain/types"
	"github.com/helixa-health/scribe/pkg/repository/firestore"
	"github.com/helixa-health/scribe/pkg/repository/memory"
)

func runPatientRepositoryTest(t *testing.T, newRepo func(t *testing.T) interfaces.Repository) {
	t.Helper()

	t.Run("Create derives display name", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		created, err := repo.Patient().Create(ctx, &model.Patient{
			FirstName: "Grace",
			LastName:  "Hopper",
		})
		gt.NoError(t, err).Required()

		gt.Value(t, created.Name).Equal("Grace Hopper")
		gt.Value(t, created.NoteCount).Equal(0)
		gt.Bool(t, created.CreatedAt.IsZero()).False()
	})

	t.Run("Get returns error for non-existent patient", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		_, err := repo.Patient().Get(ctx, types.NewPatientID())
		gt.Error(t, err)
	})

	t.Run("Update preserves note count and created timestamp", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		created, err := repo.Patient().Create(ctx, &model.Patient{
			FirstName: "Alan",
			LastName:  "Turing",
		})
		gt.NoError(t, err).Required()

		_, err = repo.Note().Create(ctx, &model.Note{PatientID: created.ID, Title: "n1"})
		gt.NoError(t, err).Required()

		created.LastName = "Turing-Welchman"
		created.Name = ""
		updated, err := repo.Patient().Update(ctx, created)
		gt.NoError(t, err).Required()

		gt.Value(t, updated.Name).Equal("Alan Turing-Welchman")
		gt.Value(t, updated.NoteCount).Equal(1)
		gt.Bool(t, updated.CreatedAt.Equal(created.CreatedAt)).True()
	})

	t.Run("Delete removes patient", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		created, err := repo.Patient().Create(ctx, &model.Patient{FirstName: "X", LastName: "Y"})
		gt.NoError(t, err).Required()

		gt.NoError(t, repo.Patient().Delete(ctx, created.ID))

		_, err = repo.Patient().Get(ctx, created.ID)
		gt.Error(t, err)
	})

	t.Run("List paginates and reports total", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		for i := 0; i < 4; i++ {
			_, err := repo.Patient().Create(ctx, &model.Patient{
				FirstName: fmt.Sprintf("P%d", i),
				LastName:  "Test",
			})
			gt.NoError(t, err).Required()
			time.Sleep(2 * time.Millisecond)
		}

		page, err := repo.Patient().List(ctx, interfaces.WithLimit(3))
		gt.NoError(t, err).Required()
		gt.Array(t, page.Patients).Length(3)
		gt.Value(t, page.TotalCount).Equal(4)
		gt.Value(t, page.NextCursor).NotEqual("")

		rest, err := repo.Patient().List(ctx,
			interfaces.WithLimit(3), interfaces.WithCursor(page.NextCursor))
		gt.NoError(t, err).Required()
		gt.Array(t, rest.Patients).Length(1)
	})

	t.Run("List filters by name search", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		_, err := repo.Patient().Create(ctx, &model.Patient{FirstName: "Marie", LastName: "Curie"})
		gt.NoError(t, err).Required()
		_, err = repo.Patient().Create(ctx, &model.Patient{FirstName: "Niels", LastName: "Bohr"})
		gt.NoError(t, err).Required()

		page, err := repo.Patient().List(ctx, interfaces.WithSearch("curie"))
		gt.NoError(t, err).Required()
		gt.Array(t, page.Patients).Length(1)
		gt.Value(t, page.Patients[0].Name).Equal("Marie Curie")
	})
}

func TestPatientRepository_Memory(t *testing.T) {
	runPatientRepositoryTest(t, func(t *testing.T) interfaces.Repository {
		return memory.New()
	})
}

func TestPatientRepository_Firestore(t *testing.T) {
	projectID := os.Getenv("FIRESTORE_PROJECT_ID")
	if projectID == "" {
		t.Skip("FIRESTORE_PROJECT_ID not set")
	}

	runPatientRepositoryTest(t, func(t *testing.T) interfaces.Repository {
		repo, err := firestore.New(context.Background(), projectID, "",
			firestore.WithCollectionPrefix(fmt.Sprintf("test_%d", time.Now().UnixNano())))
		gt.NoError(t, err).Required()
		return repo
	})
}
