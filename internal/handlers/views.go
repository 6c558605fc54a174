package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/example/campuspoints/internal/models"
)

func birthdayString(u *models.User) any {
	if u.Birthday == nil {
		return nil
	}
	return time.Time(*u.Birthday).Format(time.DateOnly)
}

func promotionViews(promos []models.Promotion) []fiber.Map {
	out := make([]fiber.Map, 0, len(promos))
	for i := range promos {
		out = append(out, promotionView(&promos[i]))
	}
	return out
}

func promotionView(p *models.Promotion) fiber.Map {
	return fiber.Map{
		"id":          p.ID,
		"name":        p.Name,
		"description": p.Description,
		"type":        p.Type,
		"startTime":   p.StartTime,
		"endTime":     p.EndTime,
		"minSpending": p.MinSpending,
		"rate":        p.Rate,
		"points":      p.Points,
	}
}

func userView(u *models.User) fiber.Map {
	return fiber.Map{
		"id":         u.ID,
		"utorid":     u.Utorid,
		"name":       u.Name,
		"email":      u.Email,
		"birthday":   birthdayString(u),
		"role":       u.Role,
		"points":     u.Points,
		"createdAt":  u.CreatedAt,
		"lastLogin":  u.LastLogin,
		"verified":   u.Verified,
		"suspicious": u.Suspicious,
		"activated":  u.IsActivated(),
		"avatarUrl":  u.AvatarURL,
		"promotions": promotionViews(u.Promotions),
	}
}

// cashierUserView is what a cashier may see about a customer.
func cashierUserView(u *models.User) fiber.Map {
	return fiber.Map{
		"id":         u.ID,
		"utorid":     u.Utorid,
		"name":       u.Name,
		"points":     u.Points,
		"verified":   u.Verified,
		"promotions": promotionViews(u.Promotions),
	}
}

func userListView(u *models.User) fiber.Map {
	view := userView(u)
	delete(view, "promotions")
	return view
}

func profileView(u *models.User) fiber.Map {
	view := userView(u)
	organized := make([]fiber.Map, 0, len(u.EventsOrganized))
	for i := range u.EventsOrganized {
		e := &u.EventsOrganized[i]
		organized = append(organized, fiber.Map{
			"id":        e.ID,
			"name":      e.Name,
			"location":  e.Location,
			"startTime": e.StartTime,
			"endTime":   e.EndTime,
			"published": e.Published,
		})
	}
	view["eventsOrganized"] = organized
	return view
}

func transactionView(t *models.Transaction) fiber.Map {
	view := fiber.Map{
		"id":           t.ID,
		"utorid":       t.Utorid,
		"type":         t.Type,
		"amount":       t.Amount,
		"promotionIds": t.PromotionIDs(),
		"suspicious":   t.Suspicious,
		"remark":       t.Remark,
		"createdBy":    t.CreatedBy,
		"createdAt":    t.CreatedAt,
	}
	if t.Spent.Valid {
		view["spent"] = t.Spent.Decimal
	}
	if t.RelatedID != nil {
		view["relatedId"] = *t.RelatedID
	}
	if t.Type == models.TransactionRedemption {
		view["processed"] = t.Processed
		view["redeemed"] = -t.Amount
	}
	return view
}

func userRef(u *models.User) fiber.Map {
	return fiber.Map{
		"id":     u.ID,
		"utorid": u.Utorid,
		"name":   u.Name,
	}
}

func userRefs(users []models.User) []fiber.Map {
	out := make([]fiber.Map, 0, len(users))
	for i := range users {
		out = append(out, userRef(&users[i]))
	}
	return out
}

// eventView renders an event. The public view hides the point budget, the
// publish state and the guest list.
func eventView(e *models.Event, full bool) fiber.Map {
	view := fiber.Map{
		"id":          e.ID,
		"name":        e.Name,
		"description": e.Description,
		"location":    e.Location,
		"startTime":   e.StartTime,
		"endTime":     e.EndTime,
		"capacity":    e.Capacity,
		"numGuests":   e.NumGuests,
		"organizers":  userRefs(e.Organizers),
	}
	if full {
		view["pointsRemain"] = e.PointsRemain
		view["pointsAwarded"] = e.PointsAwarded
		view["published"] = e.Published
		view["guests"] = userRefs(e.Guests)
	}
	return view
}

func eventListView(e *models.Event, full bool) fiber.Map {
	view := eventView(e, full)
	delete(view, "organizers")
	delete(view, "guests")
	return view
}
