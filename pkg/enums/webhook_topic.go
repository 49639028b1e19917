package enums

import "fmt"

// WebhookTopic enumerates the Shopify webhook topics the storefront consumes.
type WebhookTopic string

const (
	WebhookTopicProductsCreate    WebhookTopic = "products/create"
	WebhookTopicProductsUpdate    WebhookTopic = "products/update"
	WebhookTopicProductsDelete    WebhookTopic = "products/delete"
	WebhookTopicCollectionsCreate WebhookTopic = "collections/create"
	WebhookTopicCollectionsUpdate WebhookTopic = "collections/update"
	WebhookTopicCollectionsDelete WebhookTopic = "collections/delete"
)

var validWebhookTopics = []WebhookTopic{
	WebhookTopicProductsCreate,
	WebhookTopicProductsUpdate,
	WebhookTopicProductsDelete,
	WebhookTopicCollectionsCreate,
	WebhookTopicCollectionsUpdate,
	WebhookTopicCollectionsDelete,
}

// String implements fmt.Stringer.
func (w WebhookTopic) String() string {
	return string(w)
}

// IsProduct reports whether the topic targets products.
func (w WebhookTopic) IsProduct() bool {
	return w == WebhookTopicProductsCreate || w == WebhookTopicProductsUpdate || w == WebhookTopicProductsDelete
}

// IsCollection reports whether the topic targets collections.
func (w WebhookTopic) IsCollection() bool {
	return w == WebhookTopicCollectionsCreate || w == WebhookTopicCollectionsUpdate || w == WebhookTopicCollectionsDelete
}

// IsDelete reports whether the topic announces a deletion.
func (w WebhookTopic) IsDelete() bool {
	return w == WebhookTopicProductsDelete || w == WebhookTopicCollectionsDelete
}

// ParseWebhookTopic converts the X-Shopify-Topic header into a WebhookTopic.
func ParseWebhookTopic(value string) (WebhookTopic, error) {
	for _, candidate := range validWebhookTopics {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("unsupported webhook topic %q", value)
}
