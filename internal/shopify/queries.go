package shopify

const productFields = `
    __typename
    id
    handle
    title
    descriptionHtml
    vendor
    productType
    status
    publishedAt
    tags
    updatedAt
    options { __typename name position values }
    variants(first: 250) {
      edges { node {
        __typename
        id
        title
        sku
        price
        compareAtPrice
        position
        availableForSale
        selectedOptions { name value }
        inventoryItem { id }
      } }
    }
    media(first: 250) {
      edges { node {
        __typename
        mediaContentType
        ... on MediaImage {
          id
          image { url altText width height }
        }
      } }
    }`

const bulkProductsMutation = `mutation RunBulkProducts($query: String!) {
  bulkOperationRunQuery(query: $query) {
    bulkOperation { id status }
    userErrors { field message }
  }
}`

const bulkProductsQuery = `{
  products {
    edges {
      node {` + productFields + `
      }
    }
  }
}`

const currentBulkOperationQuery = `query CurrentBulkOperation {
  currentBulkOperation { id status errorCode createdAt completedAt objectCount url }
}`

const deltaProductsQuery = `query DeltaProducts($first: Int!, $after: String, $query: String) {
  products(first: $first, after: $after, query: $query) {
    edges {
      cursor
      node {` + productFields + `
      }
    }
    pageInfo { hasNextPage endCursor }
  }
}`

const verifyQuery = `query VerifyAccess {
  shop { name myshopifyDomain }
  products(first: 1) { edges { node { id title handle updatedAt } } }
}`
