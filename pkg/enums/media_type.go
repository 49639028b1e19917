package enums

// MediaType follows Shopify's mediaContentType values.
type MediaType string

const (
	MediaTypeImage         MediaType = "IMAGE"
	MediaTypeVideo         MediaType = "VIDEO"
	MediaTypeExternalVideo MediaType = "EXTERNAL_VIDEO"
	MediaTypeModel3D       MediaType = "MODEL_3D"
)

// String implements fmt.Stringer.
func (m MediaType) String() string {
	return string(m)
}
