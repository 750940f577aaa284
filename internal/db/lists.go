package db

import (
	"context"

	"github.com/supabase-community/postgrest-go"

	"github.com/vindennt/gearlist/internal/models"
)

const (
	listsTable      = "lists"
	itemsTable      = "items"
	listItemsTable  = "list_items"
	categoriesTable = "categories"

	recalculateTotals = "recalculate_list_totals"

	// list_items rows carry the joined item and its category name.
	listItemColumns = "*, item:items(*, categories(name))"
	itemColumns     = "*, categories:category_id(id, name)"
)

var newestFirst = &postgrest.OrderOpts{Ascending: false}

func (c *Client) FetchLists(ctx context.Context, userID string) ([]models.GearList, error) {
	var lists []models.GearList
	_, err := c.GetUserClient(ctx).From(listsTable).
		Select("*", "", false).
		Eq("user_id", userID).
		Order("created_at", newestFirst).
		ExecuteTo(&lists)
	if err != nil {
		return nil, err
	}
	return lists, nil
}

func (c *Client) FetchList(ctx context.Context, userID, listID string) (*models.GearList, error) {
	var list models.GearList
	_, err := c.GetUserClient(ctx).From(listsTable).
		Select("*", "", false).
		Eq("id", listID).
		Eq("user_id", userID).
		Single().
		ExecuteTo(&list)
	if err != nil {
		return nil, err
	}
	return &list, nil
}

func (c *Client) FetchListItems(ctx context.Context, listID string) ([]models.ListItem, error) {
	var items []models.ListItem
	_, err := c.GetUserClient(ctx).From(listItemsTable).
		Select(listItemColumns, "", false).
		Eq("list_id", listID).
		ExecuteTo(&items)
	if err != nil {
		return nil, err
	}
	return items, nil
}

type newList struct {
	UserID      string  `json:"user_id"`
	Name        string  `json:"name"`
	ItemCount   int     `json:"item_count"`
	TotalWeight float64 `json:"total_weight"`
}

func (c *Client) InsertList(ctx context.Context, userID, name string) (*models.GearList, error) {
	var list models.GearList
	_, err := c.GetUserClient(ctx).From(listsTable).
		Insert(newList{UserID: userID, Name: name}, false, "", "representation", "").
		Single().
		ExecuteTo(&list)
	if err != nil {
		return nil, err
	}
	return &list, nil
}

func (c *Client) UpdateListName(ctx context.Context, userID, listID, name string) (*models.GearList, error) {
	var list models.GearList
	_, err := c.GetUserClient(ctx).From(listsTable).
		Update(map[string]string{"name": name}, "representation", "").
		Eq("id", listID).
		Eq("user_id", userID).
		Single().
		ExecuteTo(&list)
	if err != nil {
		return nil, err
	}
	return &list, nil
}

// DeleteList checks ownership first so a missing list reports not found
// instead of silently deleting nothing.
func (c *Client) DeleteList(ctx context.Context, userID, listID string) error {
	if _, err := c.FetchList(ctx, userID, listID); err != nil {
		return err
	}

	_, _, err := c.GetUserClient(ctx).From(listsTable).
		Delete("minimal", "").
		Eq("id", listID).
		Eq("user_id", userID).
		Execute()
	return err
}

// InsertItem stores a new item owned by userID. Server assigned fields of
// item are ignored.
func (c *Client) InsertItem(ctx context.Context, userID string, item models.Item) (*models.Item, error) {
	item.ID = ""
	item.UserID = userID
	item.Category = nil

	var created models.Item
	_, err := c.GetUserClient(ctx).From(itemsTable).
		Insert(item, false, "", "representation", "").
		Single().
		ExecuteTo(&created)
	if err != nil {
		return nil, err
	}
	return &created, nil
}

func (c *Client) FetchItems(ctx context.Context, userID string) ([]models.Item, error) {
	var items []models.Item
	_, err := c.GetUserClient(ctx).From(itemsTable).
		Select(itemColumns, "", false).
		Eq("user_id", userID).
		Order("created_at", newestFirst).
		ExecuteTo(&items)
	if err != nil {
		return nil, err
	}
	return items, nil
}

// FetchCategories reads the shared category table, with the secret key when
// one is configured.
func (c *Client) FetchCategories(ctx context.Context) ([]models.Category, error) {
	client := c.GetUserClient(ctx)
	if c.secretKey != "" {
		client = c.GetSystemClient(ctx)
	}

	var categories []models.Category
	_, err := client.From(categoriesTable).
		Select("id, name", "", false).
		Order("name", &postgrest.OrderOpts{Ascending: true}).
		ExecuteTo(&categories)
	if err != nil {
		return nil, err
	}
	return categories, nil
}

type newListItem struct {
	ListID     string `json:"list_id"`
	ItemID     string `json:"item_id"`
	Worn       bool   `json:"worn"`
	Consumable bool   `json:"consumable"`
	Quantity   int    `json:"quantity"`
}

func (c *Client) InsertListItem(ctx context.Context, listID, itemID string, opts models.ListItemOptions) error {
	row := newListItem{
		ListID:     listID,
		ItemID:     itemID,
		Worn:       opts.Worn,
		Consumable: opts.Consumable,
		Quantity:   opts.Quantity,
	}
	if row.Quantity < 1 {
		row.Quantity = 1
	}

	_, _, err := c.GetUserClient(ctx).From(listItemsTable).
		Insert(row, false, "", "minimal", "").
		Execute()
	return err
}

// DeleteListItem removes the association only. The item itself is kept.
func (c *Client) DeleteListItem(ctx context.Context, listItemID string) error {
	_, _, err := c.GetUserClient(ctx).From(listItemsTable).
		Delete("minimal", "").
		Eq("id", listItemID).
		Execute()
	return err
}

// RecalculateListTotals has the database recompute item_count and
// total_weight of a list.
func (c *Client) RecalculateListTotals(ctx context.Context, listID string) error {
	_, err := rpc(c.GetUserClient(ctx), recalculateTotals, map[string]string{"p_list_id": listID})
	return err
}
