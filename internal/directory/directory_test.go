package directory

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/saravenpi/fieldpost/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSeeder struct {
	calls    []string
	profiles []models.Profile
	farms    []models.Farm
}

func (r *recordingSeeder) UpsertProfile(ctx context.Context, p models.Profile) error {
	r.calls = append(r.calls, "profile:"+p.ID)
	r.profiles = append(r.profiles, p)
	return nil
}

func (r *recordingSeeder) UpsertFarm(ctx context.Context, f models.Farm) error {
	r.calls = append(r.calls, "farm:"+f.ID)
	r.farms = append(r.farms, f)
	return nil
}

func TestSaveLoadDelete(t *testing.T) {
	d := New(filepath.Join(t.TempDir(), "directory"))
	entry := Entry{
		ID:        "farmer/1",
		Name:      "Fatos",
		AvatarURL: "f1.png",
		Farms:     []Farm{{ID: "c1", Name: "Green Acres"}},
	}

	require.NoError(t, d.Save(entry))
	assert.FileExists(t, filepath.Join(d.Path(), "farmer-1.yml"))

	loaded, err := d.Load("farmer/1")
	require.NoError(t, err)
	assert.Equal(t, entry, *loaded)

	require.NoError(t, d.Delete("farmer/1"))
	_, err = d.Load("farmer/1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, d.Delete("farmer/1"), ErrNotFound)
}

func TestSaveRequiresID(t *testing.T) {
	d := New(t.TempDir())
	assert.Error(t, d.Save(Entry{Name: "nobody"}))
}

func TestLoadDirSkipsBadFiles(t *testing.T) {
	dir := t.TempDir()
	d := New(dir)

	require.NoError(t, d.Save(Entry{ID: "f2", Name: "Genta"}))
	require.NoError(t, d.Save(Entry{ID: "f1", Name: "Fatos"}))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yml"), []byte("id: [unterminated"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "noid.yaml"), []byte("name: Anon\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644))

	entries, err := d.LoadDir()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "f1", entries[0].ID)
	assert.Equal(t, "f2", entries[1].ID)
}

func TestLoadDirMissingDirectory(t *testing.T) {
	entries, err := New(filepath.Join(t.TempDir(), "absent")).LoadDir()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSeedWritesProfilesBeforeFarms(t *testing.T) {
	d := New(t.TempDir())
	require.NoError(t, d.Save(Entry{ID: "f1", Name: "Fatos", Farms: []Farm{{ID: "c1", Name: "Green Acres"}, {Name: "no id"}}}))
	require.NoError(t, d.Save(Entry{ID: "u", Name: "Una"}))

	seeder := &recordingSeeder{}
	profiles, farms, err := d.Seed(context.Background(), seeder)
	require.NoError(t, err)

	assert.Equal(t, 2, profiles)
	assert.Equal(t, 1, farms)
	assert.Equal(t, []string{"profile:f1", "profile:u", "farm:c1"}, seeder.calls)
	assert.Equal(t, models.Farm{ID: "c1", Name: "Green Acres", OwnerID: "f1"}, seeder.farms[0])
}

func TestUpsertMergesIntoExistingEntry(t *testing.T) {
	d := New(t.TempDir())

	created, err := d.Upsert("f1", "Fatos", "", []Farm{{ID: "c1", Name: "Green Acres"}})
	require.NoError(t, err)
	assert.Equal(t, "Fatos", created.Name)

	_, err = d.Upsert("f1", "", "f1.png", []Farm{{ID: "c1", Name: "Green Acres Farm"}, {ID: "c3", Name: "Orchard"}})
	require.NoError(t, err)

	loaded, err := d.Load("f1")
	require.NoError(t, err)
	assert.Equal(t, Entry{
		ID:        "f1",
		Name:      "Fatos",
		AvatarURL: "f1.png",
		Farms:     []Farm{{ID: "c1", Name: "Green Acres Farm"}, {ID: "c3", Name: "Orchard"}},
	}, *loaded)
}

func TestUpsertNewEntryNeedsName(t *testing.T) {
	d := New(t.TempDir())

	_, err := d.Upsert("f1", "", "", nil)
	assert.Error(t, err)
	_, err = d.Load("f1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestParseFarm(t *testing.T) {
	tests := []struct {
		in      string
		want    Farm
		wantErr bool
	}{
		{in: "c1=Green Acres", want: Farm{ID: "c1", Name: "Green Acres"}},
		{in: " c2 = Blue Hill ", want: Farm{ID: "c2", Name: "Blue Hill"}},
		{in: "c3", wantErr: true},
		{in: "=Nameless", wantErr: true},
		{in: "c4=", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFarm(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
