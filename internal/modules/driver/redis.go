// README: Availability index backed by Redis GEO, hashes, and SET NX claims.
package driver

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"rideflow/internal/types"
)

const (
	geoKey         = "drivers:geo"
	metaKeyPrefix  = "drivers:meta:%s"
	claimKeyPrefix = "drivers:claim:%s"
)

// releaseScript deletes the claim only if it is still held by the caller,
// so a stale release cannot clobber another request's claim.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisIndex is the production Index: positions in a GEO set, per-driver
// metadata in hashes, claims as SET NX keys.
type RedisIndex struct {
	redis *redis.Client
}

func NewRedisIndex(rdb *redis.Client) *RedisIndex {
	return &RedisIndex{redis: rdb}
}

func (r *RedisIndex) Upsert(ctx context.Context, snap Snapshot) error {
	pipe := r.redis.Pipeline()
	pipe.HSet(ctx, metaKey(snap.DriverID),
		"online", strconv.FormatBool(snap.Online),
		"rating", snap.Rating,
		"heading", snap.HeadingDeg,
		"speed", snap.SpeedKmh,
		"updated_at", time.Now().UTC().Format(time.RFC3339),
	)
	if snap.Online {
		pipe.GeoAdd(ctx, geoKey, &redis.GeoLocation{
			Name:      string(snap.DriverID),
			Longitude: snap.Position.Lng,
			Latitude:  snap.Position.Lat,
		})
	} else {
		pipe.ZRem(ctx, geoKey, string(snap.DriverID))
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisIndex) UpdatePosition(ctx context.Context, driverID types.ID, pos types.Point, headingDeg, speedKmh float64) error {
	pipe := r.redis.Pipeline()
	pipe.HSet(ctx, metaKey(driverID),
		"heading", headingDeg,
		"speed", speedKmh,
		"updated_at", time.Now().UTC().Format(time.RFC3339),
	)
	pipe.GeoAdd(ctx, geoKey, &redis.GeoLocation{
		Name:      string(driverID),
		Longitude: pos.Lng,
		Latitude:  pos.Lat,
	})
	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisIndex) SetOnline(ctx context.Context, driverID types.ID, online bool) error {
	pipe := r.redis.Pipeline()
	pipe.HSet(ctx, metaKey(driverID), "online", strconv.FormatBool(online))
	if !online {
		pipe.ZRem(ctx, geoKey, string(driverID))
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisIndex) QueryNearby(ctx context.Context, center types.Point, radiusKm float64, exclude map[types.ID]struct{}) ([]Candidate, error) {
	locs, err := r.redis.GeoSearchLocation(ctx, geoKey, &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Longitude:  center.Lng,
			Latitude:   center.Lat,
			Radius:     radiusKm,
			RadiusUnit: "km",
			Sort:       "ASC",
		},
		WithCoord: true,
		WithDist:  true,
	}).Result()
	if err != nil {
		return nil, err
	}

	var out []Candidate
	for _, loc := range locs {
		id := types.ID(loc.Name)
		if _, skip := exclude[id]; skip {
			continue
		}
		meta, err := r.redis.HGetAll(ctx, metaKey(id)).Result()
		if err != nil {
			return nil, err
		}
		if meta["online"] != "true" {
			continue
		}
		claimed, err := r.redis.Exists(ctx, claimKey(id)).Result()
		if err != nil {
			return nil, err
		}
		if claimed > 0 {
			continue
		}
		rating, _ := strconv.ParseFloat(meta["rating"], 64)
		out = append(out, Candidate{
			DriverID:   id,
			Position:   types.Point{Lat: loc.Latitude, Lng: loc.Longitude},
			DistanceKm: loc.Dist,
			Rating:     rating,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].DistanceKm != out[j].DistanceKm {
			return out[i].DistanceKm < out[j].DistanceKm
		}
		return out[i].Rating > out[j].Rating
	})
	return out, nil
}

func (r *RedisIndex) Claim(ctx context.Context, driverID, requestID types.ID) (bool, error) {
	return r.redis.SetNX(ctx, claimKey(driverID), string(requestID), 0).Result()
}

func (r *RedisIndex) Release(ctx context.Context, driverID, requestID types.ID) error {
	return releaseScript.Run(ctx, r.redis, []string{claimKey(driverID)}, string(requestID)).Err()
}

func metaKey(driverID types.ID) string {
	return fmt.Sprintf(metaKeyPrefix, string(driverID))
}

func claimKey(driverID types.ID) string {
	return fmt.Sprintf(claimKeyPrefix, string(driverID))
}
