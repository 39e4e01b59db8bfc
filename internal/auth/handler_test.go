package auth

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"procurement-backend/internal/models"
	"procurement-backend/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateFirstAdminOnlyOnce(t *testing.T) {
	db := testutil.NewDB(t)

	const callers = 6
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		refused int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			u := models.User{
				Name:         fmt.Sprintf("root%d", i),
				Email:        fmt.Sprintf("root%d@example.com", i),
				PasswordHash: "x",
				Role:         models.RoleAdmin,
			}
			err := createFirstAdmin(db.WithContext(context.Background()), &u)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				created++
				return
			}
			assert.ErrorIs(t, err, errAdminExists)
			refused++
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Equal(t, callers-1, refused)

	var admins int64
	require.NoError(t, db.Model(&models.User{}).Where("role = ?", models.RoleAdmin).Count(&admins).Error)
	assert.Equal(t, int64(1), admins)
}
