package directory

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/peekop/internal/models"
)

// RedisDirectory implements Directory over Redis GEO commands, with provider
// metadata in a per-provider hash. Shared with the location consumer, which
// writes the same keys.
type RedisDirectory struct {
	client *redis.Client
	key    string
	radius float64 // meters
	ctx    context.Context
}

func NewRedisDirectory(addr, password, key string) *RedisDirectory {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &RedisDirectory{client: c, key: key, radius: 5000, ctx: context.Background()}
}

func (r *RedisDirectory) Upsert(p models.Provider) {
	id := strconv.FormatInt(p.ID, 10)
	_, _ = r.client.GeoAdd(r.ctx, r.key, &redis.GeoLocation{Longitude: p.Loc.Lng, Latitude: p.Loc.Lat, Name: id}).Result()
	_ = r.client.HSet(r.ctx, MetaKey(p.ID), map[string]interface{}{
		"name":    p.Name,
		"photo":   p.Photo,
		"rating":  strconv.FormatFloat(p.Rating, 'f', -1, 64),
		"vehicle": string(p.Vehicle),
		"online":  strconv.FormatBool(p.Online),
		"updated": time.Now().Format(time.RFC3339),
	}).Err()
}

func (r *RedisDirectory) Get(id int64) (models.Provider, bool) {
	m, err := r.client.HGetAll(r.ctx, MetaKey(id)).Result()
	if err != nil || len(m) == 0 {
		return models.Provider{}, false
	}
	p := models.Provider{ID: id}
	fillMeta(&p, m)
	if pos, err := r.client.GeoPos(r.ctx, r.key, strconv.FormatInt(id, 10)).Result(); err == nil && len(pos) > 0 && pos[0] != nil {
		p.Loc = models.Coord{Lat: pos[0].Latitude, Lng: pos[0].Longitude}
	}
	return p, true
}

func (r *RedisDirectory) Nearby(at models.Coord, limit int) []models.Provider {
	return r.search(at, limit, false)
}

func (r *RedisDirectory) Available(at models.Coord, limit int) []models.Provider {
	return r.search(at, limit, true)
}

func (r *RedisDirectory) search(at models.Coord, limit int, onlineOnly bool) []models.Provider {
	res, err := r.client.GeoRadius(r.ctx, r.key, at.Lng, at.Lat, &redis.GeoRadiusQuery{
		Radius: r.radius, Unit: "m", WithCoord: true, WithDist: true, Count: limit, Sort: "ASC",
	}).Result()
	if err != nil {
		return nil
	}
	out := make([]models.Provider, 0, len(res))
	for _, g := range res {
		id, err := strconv.ParseInt(g.Name, 10, 64)
		if err != nil {
			continue
		}
		p := models.Provider{ID: id, Loc: models.Coord{Lat: g.Latitude, Lng: g.Longitude}}
		if m, err := r.client.HGetAll(r.ctx, MetaKey(id)).Result(); err == nil {
			fillMeta(&p, m)
		}
		if onlineOnly && !p.Online {
			continue
		}
		out = append(out, p)
	}
	return out
}

func fillMeta(p *models.Provider, m map[string]string) {
	p.Name = m["name"]
	p.Photo = m["photo"]
	p.Vehicle = models.VehicleType(m["vehicle"])
	if v, ok := m["rating"]; ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			p.Rating = f
		}
	}
	p.Online = m["online"] == "true"
	if v, ok := m["updated"]; ok {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			p.Updated = t
		}
	}
}

// MetaKey is the hash key holding a provider's denormalized attributes.
func MetaKey(id int64) string { return "provider:meta:" + strconv.FormatInt(id, 10) }
