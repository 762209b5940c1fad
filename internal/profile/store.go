package profile

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sweeney/reflowd/internal/apperr"
	"github.com/sweeney/reflowd/internal/kvstore"
)

func slotKey(idx int) string {
	return fmt.Sprintf("profile.slot.%d", idx)
}

func validateSlot(idx int) error {
	if idx < 0 || idx >= MaxSlots {
		return apperr.New(apperr.InvalidArgument, "slot index %d out of range [0,%d)", idx, MaxSlots)
	}
	return nil
}

// SaveToSlot persists def as the given slot's JSON blob. It refuses to
// overwrite an occupied slot; callers must DeleteSlot first.
func SaveToSlot(store kvstore.Store, idx int, def ProfileDefinition) error {
	if err := validateSlot(idx); err != nil {
		return err
	}
	if errs := Validate(def); len(errs) > 0 {
		return validationErr(errs)
	}

	key := slotKey(idx)
	if _, err := store.GetBytes(key); err == nil {
		return apperr.New(apperr.InvalidState, "slot %d already occupied", idx)
	} else if !errors.Is(err, kvstore.ErrNotFound) {
		return err
	}

	data, err := MarshalJSON(def)
	if err != nil {
		return err
	}
	return store.SetBytes(key, data)
}

// LoadFromSlot reads and parses the profile stored in slot idx.
func LoadFromSlot(store kvstore.Store, idx int) (ProfileDefinition, error) {
	if err := validateSlot(idx); err != nil {
		return ProfileDefinition{}, err
	}
	key := slotKey(idx)
	data, err := store.GetBytes(key)
	if errors.Is(err, kvstore.ErrNotFound) {
		return ProfileDefinition{}, apperr.New(apperr.NotFound, "profile slot %d is empty", idx)
	}
	if err != nil {
		return ProfileDefinition{}, err
	}
	return UnmarshalJSON(data)
}

// DeleteSlot removes a slot's contents. Deleting an empty slot is not
// an error.
func DeleteSlot(store kvstore.Store, idx int) error {
	if err := validateSlot(idx); err != nil {
		return err
	}
	return store.Delete(slotKey(idx))
}

// MarshalJSON serializes a ProfileDefinition per the v1 schema,
// omitting Wait's unused latch fields and Soak's guaranteed/deviation
// when not applicable.
func MarshalJSON(def ProfileDefinition) ([]byte, error) {
	return json.Marshal(def)
}

// UnmarshalJSON parses a v1 profile JSON blob.
func UnmarshalJSON(data []byte) (ProfileDefinition, error) {
	var def ProfileDefinition
	if err := json.Unmarshal(data, &def); err != nil {
		return ProfileDefinition{}, apperr.Wrap(apperr.InvalidArgument, err, "malformed profile JSON")
	}
	return def, nil
}
