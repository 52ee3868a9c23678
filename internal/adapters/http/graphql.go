package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"
)

// jsonScalar passes already-encodable values such as GeoJSON features through.
var jsonScalar = graphql.NewScalar(graphql.ScalarConfig{
	Name:        "JSON",
	Description: "Arbitrary JSON value",
	Serialize:   func(value interface{}) interface{} { return value },
})

// buildSchema creates the GraphQL schema wired to the session service. All
// fields act on behalf of the owner stored in the resolver context.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	geoPointType := graphql.NewObject(graphql.ObjectConfig{
		Name: "GeoPoint",
		Fields: graphql.Fields{
			"lat": &graphql.Field{Type: graphql.Float},
			"lon": &graphql.Field{Type: graphql.Float},
		},
	})

	sampleType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Sample",
		Fields: graphql.Fields{
			"latitude":  &graphql.Field{Type: graphql.Float},
			"longitude": &graphql.Field{Type: graphql.Float},
			"timestamp": &graphql.Field{Type: graphql.DateTime},
		},
	})

	sessionType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Session",
		Fields: graphql.Fields{
			"id":               &graphql.Field{Type: graphql.String},
			"owner_id":         &graphql.Field{Type: graphql.String},
			"state":            &graphql.Field{Type: graphql.String},
			"start_location":   &graphql.Field{Type: geoPointType},
			"end_location":     &graphql.Field{Type: geoPointType},
			"start_time":       &graphql.Field{Type: graphql.DateTime},
			"end_time":         &graphql.Field{Type: graphql.DateTime},
			"duration_seconds": &graphql.Field{Type: graphql.Int},
			"track":            &graphql.Field{Type: graphql.NewList(sampleType)},
		},
	})

	summaryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "SessionSummary",
		Fields: graphql.Fields{
			"id":          &graphql.Field{Type: graphql.String},
			"start_time":  &graphql.Field{Type: graphql.DateTime},
			"end_time":    &graphql.Field{Type: graphql.DateTime},
			"distance":    &graphql.Field{Type: graphql.Float},
			"area":        &graphql.Field{Type: graphql.Float},
			"duration":    &graphql.Field{Type: graphql.Int},
			"point_count": &graphql.Field{Type: graphql.Int},
			"track_data":  &graphql.Field{Type: graphql.NewList(sampleType)},
		},
	})

	statsType := graphql.NewObject(graphql.ObjectConfig{
		Name: "SessionStats",
		Fields: graphql.Fields{
			"distance": &graphql.Field{Type: graphql.Float},
			"area":     &graphql.Field{Type: graphql.Float},
			"duration": &graphql.Field{Type: graphql.Int},
		},
	})

	geoJSONType := graphql.NewObject(graphql.ObjectConfig{
		Name: "SessionGeoJSON",
		Fields: graphql.Fields{
			"track":   &graphql.Field{Type: jsonScalar},
			"polygon": &graphql.Field{Type: jsonScalar},
			"stats":   &graphql.Field{Type: statsType},
		},
	})

	positionArgs := graphql.FieldConfigArgument{
		"latitude":  &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
		"longitude": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
	}

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"activeSession": &graphql.Field{
				Type:        sessionType,
				Description: "The caller's active session, if any",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					session, err := deps.Sessions.GetActive(p.Context, OwnerFromCtx(p.Context))
					if err != nil || session == nil {
						return nil, err
					}
					return session, nil
				},
			},
			"sessionHistory": &graphql.Field{
				Type:        graphql.NewList(summaryType),
				Description: "Completed sessions, newest first",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.Sessions.History(p.Context, OwnerFromCtx(p.Context))
				},
			},
			"sessionGeoJSON": &graphql.Field{
				Type:        geoJSONType,
				Description: "Track and surveyed area of a session as GeoJSON",
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					id := p.Args["id"].(string)
					return deps.Sessions.GeoJSON(p.Context, OwnerFromCtx(p.Context), id)
				},
			},
		},
	})

	mutationType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Mutation",
		Fields: graphql.Fields{
			"startSession": &graphql.Field{
				Type: sessionType,
				Args: positionArgs,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					lat, lon := p.Args["latitude"].(float64), p.Args["longitude"].(float64)
					return deps.Sessions.Start(p.Context, OwnerFromCtx(p.Context), lat, lon)
				},
			},
			"stopSession": &graphql.Field{
				Type:        sessionType,
				Description: "Completes the active session; null when none was active",
				Args:        positionArgs,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					lat, lon := p.Args["latitude"].(float64), p.Args["longitude"].(float64)
					session, err := deps.Sessions.Stop(p.Context, OwnerFromCtx(p.Context), lat, lon)
					if err != nil || session == nil {
						return nil, err
					}
					return session, nil
				},
			},
			"addPoint": &graphql.Field{
				Type:        graphql.Boolean,
				Description: "Records a sample; false when no session is active",
				Args: graphql.FieldConfigArgument{
					"latitude":  positionArgs["latitude"],
					"longitude": positionArgs["longitude"],
					"timestamp": &graphql.ArgumentConfig{Type: graphql.DateTime},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					lat, lon := p.Args["latitude"].(float64), p.Args["longitude"].(float64)
					var ts time.Time
					switch v := p.Args["timestamp"].(type) {
					case time.Time:
						ts = v
					case *time.Time:
						if v != nil {
							ts = *v
						}
					}
					return deps.Sessions.AddPoint(p.Context, OwnerFromCtx(p.Context), lat, lon, ts)
				},
			},
			"deleteSession": &graphql.Field{
				Type: graphql.Boolean,
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					id := p.Args["id"].(string)
					if err := deps.Sessions.DeleteByID(p.Context, OwnerFromCtx(p.Context), id); err != nil {
						return false, err
					}
					return true, nil
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query:    queryType,
		Mutation: mutationType,
	})
}

// GraphQLHandler serves the GraphQL endpoint.
func GraphQLHandler(deps *Dependencies) fiber.Handler {
	schema, err := buildSchema(deps)
	if err != nil {
		// This would be a programming error in the schema definition
		panic("graphql schema build: " + err.Error())
	}

	type gqlRequest struct {
		Query         string                 `json:"query"`
		OperationName string                 `json:"operationName"`
		Variables     map[string]interface{} `json:"variables"`
	}

	return func(c *fiber.Ctx) error {
		var req gqlRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}

		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  req.Query,
			VariableValues: req.Variables,
			OperationName:  req.OperationName,
			Context:        c.UserContext(),
		})

		return c.JSON(result)
	}
}
