// README: Redis mirror of the driver pool: a hash per driver, a seq-ordered index and a GEO set.
package driver

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"campusride/internal/modules/fare"
	"campusride/internal/types"
)

const (
	driverIndexKey = "drivers:index"
	driverGeoKey   = "drivers:geo"
	driverKeyFmt   = "driver:%s"
)

type RedisMirror struct {
	redis *redis.Client
}

func NewRedisMirror(redis *redis.Client) *RedisMirror {
	return &RedisMirror{redis: redis}
}

func (m *RedisMirror) Save(ctx context.Context, d Driver) error {
	pipe := m.redis.TxPipeline()
	pipe.HSet(ctx, driverKey(d.ID), map[string]any{
		"name":           d.Name,
		"phone":          d.Phone,
		"vehicle_number": d.VehicleNumber,
		"vehicle_class":  string(d.VehicleClass),
		"available":      strconv.FormatBool(d.Available),
		"off_duty":       strconv.FormatBool(d.OffDuty),
		"location":       string(d.Location),
		"rating":         strconv.FormatFloat(d.Rating, 'f', -1, 64),
		"rated_rides":    strconv.Itoa(d.RatedRides),
		"active_ride":    string(d.ActiveRide),
		"seq":            strconv.FormatInt(d.Seq, 10),
		"registered_at":  d.RegisteredAt.UTC().Format(time.RFC3339Nano),
		"version":        strconv.FormatInt(d.Version, 10),
	})
	pipe.ZAdd(ctx, driverIndexKey, redis.Z{Score: float64(d.Seq), Member: string(d.ID)})
	if pt, ok := types.ParsePoint(d.Location); ok {
		pipe.GeoAdd(ctx, driverGeoKey, &redis.GeoLocation{
			Name:      string(d.ID),
			Longitude: pt.Lng,
			Latitude:  pt.Lat,
		})
	} else {
		pipe.ZRem(ctx, driverGeoKey, string(d.ID))
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (m *RedisMirror) Load(ctx context.Context) ([]Driver, error) {
	ids, err := m.redis.ZRange(ctx, driverIndexKey, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := m.redis.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, driverKey(types.ID(id)))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	out := make([]Driver, 0, len(ids))
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		d, err := driverFromHash(types.ID(ids[i]), fields)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// Nearby lists drivers with a resolvable position within radiusKm of p, closest first.
func (m *RedisMirror) Nearby(ctx context.Context, p types.Point, radiusKm float64) ([]types.ID, error) {
	results, err := m.redis.GeoSearch(ctx, driverGeoKey, &redis.GeoSearchQuery{
		Longitude:  p.Lng,
		Latitude:   p.Lat,
		Radius:     radiusKm,
		RadiusUnit: "km",
		Sort:       "ASC",
	}).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]types.ID, len(results))
	for i, r := range results {
		ids[i] = types.ID(r)
	}
	return ids, nil
}

func driverFromHash(id types.ID, f map[string]string) (Driver, error) {
	d := Driver{
		ID:            id,
		Name:          f["name"],
		Phone:         f["phone"],
		VehicleNumber: f["vehicle_number"],
		VehicleClass:  fare.VehicleClass(f["vehicle_class"]),
		Location:      types.Location(f["location"]),
		ActiveRide:    types.ID(f["active_ride"]),
	}
	var err error
	if d.Available, err = strconv.ParseBool(f["available"]); err != nil {
		return Driver{}, fmt.Errorf("driver %s available: %w", id, err)
	}
	if v := f["off_duty"]; v != "" {
		if d.OffDuty, err = strconv.ParseBool(v); err != nil {
			return Driver{}, fmt.Errorf("driver %s off_duty: %w", id, err)
		}
	}
	if v := f["version"]; v != "" {
		if d.Version, err = strconv.ParseInt(v, 10, 64); err != nil {
			return Driver{}, fmt.Errorf("driver %s version: %w", id, err)
		}
	}
	if d.Rating, err = strconv.ParseFloat(f["rating"], 64); err != nil {
		return Driver{}, fmt.Errorf("driver %s rating: %w", id, err)
	}
	if d.RatedRides, err = strconv.Atoi(f["rated_rides"]); err != nil {
		return Driver{}, fmt.Errorf("driver %s rated_rides: %w", id, err)
	}
	if d.Seq, err = strconv.ParseInt(f["seq"], 10, 64); err != nil {
		return Driver{}, fmt.Errorf("driver %s seq: %w", id, err)
	}
	if ts := f["registered_at"]; ts != "" {
		if d.RegisteredAt, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return Driver{}, fmt.Errorf("driver %s registered_at: %w", id, err)
		}
	}
	return d, nil
}

func driverKey(id types.ID) string {
	return fmt.Sprintf(driverKeyFmt, string(id))
}
