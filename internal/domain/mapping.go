package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Classification describes how a mapped menu item participates in costing
type Classification string

const (
	ClassFlavor        Classification = "flavor"
	ClassBeverage      Classification = "beverage"
	ClassComplement    Classification = "complement"
	ClassParentProduct Classification = "parent_product"
	ClassAdditional    Classification = "additional"
	ClassCombo         Classification = "combo"
)

// IsValid checks if the classification is valid
func (c Classification) IsValid() bool {
	switch c {
	case ClassFlavor, ClassBeverage, ClassComplement, ClassParentProduct, ClassAdditional, ClassCombo:
		return true
	}
	return false
}

// MappingKeyType distinguishes how the mapping key was derived
type MappingKeyType string

const (
	KeySKU   MappingKeyType = "sku"
	KeyAddon MappingKeyType = "addon"
)

// ItemMapping links an external menu item (by SKU) or an add-on (by name
// digest) to a catalog product and a classification. Unlinked mappings are
// classified but carry no product.
type ItemMapping struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	MappingID      string             `bson:"mappingId" json:"mappingId"`
	TenantID       string             `bson:"tenantId" json:"tenantId"`
	Key            string             `bson:"key" json:"key"`
	KeyType        MappingKeyType     `bson:"keyType" json:"keyType"`
	Classification Classification     `bson:"classification" json:"classification"`
	ProductID      string             `bson:"productId,omitempty" json:"productId,omitempty"`
	CostOverride   *float64           `bson:"costOverride,omitempty" json:"costOverride,omitempty"`
	CreatedAt      time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt      time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// NewItemMapping creates a mapping
func NewItemMapping(tenantID, key string, keyType MappingKeyType, classification Classification) (*ItemMapping, error) {
	if tenantID == "" {
		return nil, ErrTenantRequired
	}
	if key == "" {
		return nil, ErrMappingKeyRequired
	}
	if !classification.IsValid() {
		return nil, ErrInvalidClassification
	}
	now := time.Now().UTC()
	return &ItemMapping{
		MappingID:      fmt.Sprintf("MAP-%s", uuid.New().String()[:8]),
		TenantID:       tenantID,
		Key:            key,
		KeyType:        keyType,
		Classification: classification,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// Link attaches a catalog product to the mapping
func (m *ItemMapping) Link(productID string) error {
	if productID == "" {
		return ErrProductRequired
	}
	m.ProductID = productID
	m.UpdatedAt = time.Now().UTC()
	return nil
}

// IsLinked reports whether the mapping points at a catalog product
func (m *ItemMapping) IsLinked() bool {
	return m.ProductID != ""
}

// IsFlavor reports whether the mapping classifies a composite flavor
func (m *ItemMapping) IsFlavor() bool {
	return m.Classification == ClassFlavor
}

// AddonKey derives the deterministic lookup key for an add-on name.
// Names are normalized before hashing so menu punctuation and casing
// differences collapse to the same key.
func AddonKey(name string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(name)), " ")
	sum := sha256.Sum256([]byte(normalized))
	return "adk_" + hex.EncodeToString(sum[:])[:16]
}
