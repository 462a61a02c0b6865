package handler

import (
	"encoding/json"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"

	"crmapi/internal/gql"
)

// GraphQL godoc
// @Summary GraphQL endpoint
// @Description Executes a query or mutation. GET without a query from a browser serves GraphiQL.
// @Tags graphql
// @Accept json
// @Produce json
// @Param request body gql.Request true "GraphQL request"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} errorPayload
// @Router /graphql [post]
func GraphQL(schema graphql.Schema) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req gql.Request

		if c.Method() == fiber.MethodGet {
			req.Query = c.Query("query")
			if req.Query == "" && strings.Contains(c.Get(fiber.HeaderAccept), "text/html") {
				return c.Type("html").SendString(graphiqlPage)
			}
			req.OperationName = c.Query("operationName")
			if v := c.Query("variables"); v != "" {
				if err := json.Unmarshal([]byte(v), &req.Variables); err != nil {
					return writeError(c, fiber.StatusBadRequest, "INVALID_VARIABLES", "variables must be a JSON object")
				}
			}
		} else {
			ct := string(c.Request().Header.ContentType())
			if strings.HasPrefix(ct, "application/graphql") {
				req.Query = string(c.Body())
			} else if err := json.Unmarshal(c.Body(), &req); err != nil {
				return writeError(c, fiber.StatusBadRequest, "INVALID_JSON", "request body must be a JSON object")
			}
		}

		if strings.TrimSpace(req.Query) == "" {
			return writeError(c, fiber.StatusBadRequest, "QUERY_REQUIRED", "Must provide query string.")
		}

		return c.JSON(gql.Execute(c.UserContext(), schema, req))
	}
}

const graphiqlPage = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8" />
  <title>CRM GraphiQL</title>
  <link rel="stylesheet" href="https://unpkg.com/graphiql@3/graphiql.min.css" />
</head>
<body style="margin: 0;">
  <div id="graphiql" style="height: 100vh;"></div>
  <script crossorigin src="https://unpkg.com/react@18/umd/react.production.min.js"></script>
  <script crossorigin src="https://unpkg.com/react-dom@18/umd/react-dom.production.min.js"></script>
  <script crossorigin src="https://unpkg.com/graphiql@3/graphiql.min.js"></script>
  <script>
    const fetcher = GraphiQL.createFetcher({ url: window.location.pathname });
    ReactDOM.createRoot(document.getElementById('graphiql'))
      .render(React.createElement(GraphiQL, { fetcher }));
  </script>
</body>
</html>`
