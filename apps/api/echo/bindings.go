package echoapi

import (
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/maktab/core"
)

var (
	orderingParam = "ordering"
	limitParam    = "limit"
)

type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	data := ctx.QueryParams()
	if len(data) == 0 {
		return
	}
	val, ok := data[orderingParam]
	if !ok || len(val) == 0 || val[0] == "" {
		return
	}

	for _, field := range strings.Split(val[0], ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

// bindLimit reads the `limit` query param; 0 lets the service pick its default.
func bindLimit(ctx echo.Context) int {
	limit, err := strconv.Atoi(ctx.QueryParam(limitParam))
	if err != nil || limit < 0 {
		return 0
	}
	return limit
}
