package cache

import (
	"fmt"
	"strconv"
)

// Entity names a kind of cached query result
type Entity string

const (
	EntityLot          Entity = "lote"
	EntityProjectLots  Entity = "lotes_proyecto"
	EntityMyBids       Entity = "mis_pujas"
	EntityActiveBids   Entity = "pujas_activas"
	EntitySubscription Entity = "suscripcion"
)

// Key identifies a cached query by (entity, id)
type Key struct {
	Entity Entity
	ID     string
}

func (k Key) String() string {
	return string(k.Entity) + ":" + k.ID
}

func LotKey(lotID int64) Key {
	return Key{Entity: EntityLot, ID: strconv.FormatInt(lotID, 10)}
}

func ProjectLotsKey(projectID int64) Key {
	return Key{Entity: EntityProjectLots, ID: strconv.FormatInt(projectID, 10)}
}

func MyBidsKey(userID int64) Key {
	return Key{Entity: EntityMyBids, ID: strconv.FormatInt(userID, 10)}
}

func ActiveBidsKey(userID int64) Key {
	return Key{Entity: EntityActiveBids, ID: strconv.FormatInt(userID, 10)}
}

// SubscriptionKey is per viewer and project
func SubscriptionKey(userID, projectID int64) Key {
	return Key{Entity: EntitySubscription, ID: fmt.Sprintf("%d/%d", userID, projectID)}
}
