package shopify

import "context"

type VerifyResult struct {
	ShopName         string `json:"shopName"`
	ShopDomain       string `json:"shopDomain"`
	SampleProduct    string `json:"sampleProduct,omitempty"`
	RequestedVersion string `json:"requestedVersion"`
	ResponseVersion  string `json:"responseVersion"`
}

// Verify confirms the credentials can read the shop and its products.
func (c *Client) Verify(ctx context.Context) (*VerifyResult, error) {
	var out struct {
		Shop struct {
			Name            string `json:"name"`
			MyshopifyDomain string `json:"myshopifyDomain"`
		} `json:"shop"`
		Products connection[struct {
			ID     string `json:"id"`
			Title  string `json:"title"`
			Handle string `json:"handle"`
		}] `json:"products"`
	}
	if _, err := c.Query(ctx, verifyQuery, nil, &out); err != nil {
		return nil, err
	}
	result := &VerifyResult{
		ShopName:         out.Shop.Name,
		ShopDomain:       out.Shop.MyshopifyDomain,
		RequestedVersion: c.apiVersion,
		ResponseVersion:  c.ServerVersion(),
	}
	if len(out.Products.Edges) > 0 {
		result.SampleProduct = out.Products.Edges[0].Node.Title
	}
	return result, nil
}
