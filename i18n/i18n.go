// Package i18n holds the UI translations. French is the default language.
package i18n

import (
	"context"
	"strings"
)

const Default = "fr"

type langKey struct{}

// WithLang returns a context carrying the preferred language.
func WithLang(ctx context.Context, lang string) context.Context {
	return context.WithValue(ctx, langKey{}, lang)
}

// LangFromContext returns the language stored by WithLang, or Default.
func LangFromContext(ctx context.Context) string {
	if l, ok := ctx.Value(langKey{}).(string); ok && l != "" {
		return l
	}
	return Default
}

// DetectLanguage picks a supported language from an Accept-Language header.
func DetectLanguage(header string) string {
	for _, part := range strings.Split(header, ",") {
		tag := strings.TrimSpace(strings.SplitN(part, ";", 2)[0])
		base := strings.ToLower(strings.SplitN(tag, "-", 2)[0])
		if _, ok := catalogs[base]; ok {
			return base
		}
	}
	return Default
}

// Supported reports whether lang has a catalog.
func Supported(lang string) bool {
	_, ok := catalogs[lang]
	return ok
}

// T translates code; unknown languages fall back to French and unknown codes to the code itself.
func T(lang, code string) string {
	if c, ok := catalogs[lang]; ok {
		if s, ok := c[code]; ok {
			return s
		}
	}
	if s, ok := catalogs[Default][code]; ok {
		return s
	}
	return code
}

var catalogs = map[string]map[string]string{
	"fr": {
		// validation codes
		"required":           "Requis",
		"too_long":           "Trop long",
		"invalid_email":      "Email invalide",
		"out_of_range":       "Valeur hors limites",
		"must_be_positive":   "Le prix doit être positif",
		"invalid":            "Valeur invalide",
		"at_least_one_line":  "Veuillez ajouter au moins un article.",
		"invalid_date":       "Date invalide",
		"invalid_status":     "Statut invalide",
		"in_use":             "Élément utilisé par un approvisionnement, suppression impossible.",
		"reference_conflict": "Référence déjà utilisée, veuillez réessayer.",
		"unknown_reference":  "Fournisseur ou article introuvable.",

		// statuses
		"status.pending":   "En attente",
		"status.received":  "Reçu",
		"status.cancelled": "Annulé",

		// flash messages
		"order.created":    "Approvisionnement créé avec succès.",
		"order.updated":    "Approvisionnement modifié avec succès.",
		"order.deleted":    "Approvisionnement supprimé avec succès.",
		"order.status_set": "Statut mis à jour avec succès.",
		"supplier.saved":   "Fournisseur enregistré avec succès.",
		"supplier.deleted": "Fournisseur supprimé avec succès.",
		"article.saved":    "Article enregistré avec succès.",
		"article.deleted":  "Article supprimé avec succès.",

		// labels
		"app.title":          "Gestion des approvisionnements",
		"nav.orders":         "Approvisionnements",
		"nav.suppliers":      "Fournisseurs",
		"nav.articles":       "Articles",
		"nav.dashboard":      "Tableau de bord",
		"order.reference":    "Référence",
		"order.date":         "Date d'approvisionnement",
		"order.supplier":     "Fournisseur",
		"order.observations": "Observations",
		"order.status":       "Statut",
		"order.total":        "Montant total (FCFA)",
		"order.lines":        "Articles",
		"order.new":          "Nouvel approvisionnement",
		"order.edit":         "Modifier l'approvisionnement",
		"line.article":       "Article",
		"line.quantity":      "Quantité",
		"line.unit_price":    "Prix unitaire (FCFA)",
		"line.amount":        "Montant (FCFA)",
		"stats.total":        "Total des approvisionnements",
		"stats.count":        "Nombre d'approvisionnements",
		"stats.leading":      "Fournisseur principal",
		"filter.search":      "Rechercher",
		"filter.from":        "Du",
		"filter.to":          "Au",
		"filter.all":         "Tous",
		"sort.date_desc":     "Date (récent)",
		"sort.date_asc":      "Date (ancien)",
		"sort.amount_desc":   "Montant (décroissant)",
		"sort.amount_asc":    "Montant (croissant)",
		"sort.reference":     "Référence",
		"supplier.name":      "Nom du fournisseur",
		"supplier.address":   "Adresse",
		"supplier.phone":     "Téléphone",
		"supplier.email":     "Email",
		"article.name":       "Nom de l'article",
		"article.desc":       "Description",
		"article.price":      "Prix unitaire (FCFA)",
		"article.stock":      "Stock actuel",
		"action.save":        "Enregistrer",
		"action.edit":        "Modifier",
		"action.delete":      "Supprimer",
		"action.details":     "Détails",
		"action.new":         "Nouveau",
		"action.filter":      "Filtrer",
		"action.export":      "Exporter (Excel)",
		"action.add_line":    "Ajouter un article",
		"empty":              "Aucun résultat.",
		"page":               "Page",

		"dashboard.top_suppliers": "Meilleurs fournisseurs",
		"dashboard.top_articles":  "Articles les plus commandés",
		"dashboard.monthly":       "Totaux mensuels",

		"sort.label":          "Trier par",
		"confirm.delete":      "Confirmer la suppression ?",
		"action.cancel":       "Annuler",
		"action.back":         "Retour à la liste",
		"supplier.new":        "Nouveau fournisseur",
		"article.new":         "Nouvel article",
		"article.stock_value": "Valeur du stock",
	},
	"en": {
		"required":           "Required",
		"too_long":           "Too long",
		"invalid_email":      "Invalid email",
		"out_of_range":       "Out of range",
		"must_be_positive":   "Price must be positive",
		"invalid":            "Invalid value",
		"at_least_one_line":  "Please add at least one article.",
		"invalid_date":       "Invalid date",
		"invalid_status":     "Invalid status",
		"in_use":             "Used by an order, cannot be deleted.",
		"reference_conflict": "Reference already used, please retry.",
		"unknown_reference":  "Unknown supplier or article.",

		"status.pending":   "Pending",
		"status.received":  "Received",
		"status.cancelled": "Cancelled",

		"order.created":    "Order created.",
		"order.updated":    "Order updated.",
		"order.deleted":    "Order deleted.",
		"order.status_set": "Status updated.",
		"supplier.saved":   "Supplier saved.",
		"supplier.deleted": "Supplier deleted.",
		"article.saved":    "Article saved.",
		"article.deleted":  "Article deleted.",

		"app.title":          "Procurement",
		"nav.orders":         "Orders",
		"nav.suppliers":      "Suppliers",
		"nav.articles":       "Articles",
		"nav.dashboard":      "Dashboard",
		"order.reference":    "Reference",
		"order.date":         "Order date",
		"order.supplier":     "Supplier",
		"order.observations": "Notes",
		"order.status":       "Status",
		"order.total":        "Total (FCFA)",
		"order.lines":        "Articles",
		"order.new":          "New order",
		"order.edit":         "Edit order",
		"line.article":       "Article",
		"line.quantity":      "Quantity",
		"line.unit_price":    "Unit price (FCFA)",
		"line.amount":        "Amount (FCFA)",
		"stats.total":        "Total amount",
		"stats.count":        "Orders",
		"stats.leading":      "Leading supplier",
		"filter.search":      "Search",
		"filter.from":        "From",
		"filter.to":          "To",
		"filter.all":         "All",
		"sort.date_desc":     "Date (newest)",
		"sort.date_asc":      "Date (oldest)",
		"sort.amount_desc":   "Amount (high to low)",
		"sort.amount_asc":    "Amount (low to high)",
		"sort.reference":     "Reference",
		"supplier.name":      "Supplier name",
		"supplier.address":   "Address",
		"supplier.phone":     "Phone",
		"supplier.email":     "Email",
		"article.name":       "Article name",
		"article.desc":       "Description",
		"article.price":      "Unit price (FCFA)",
		"article.stock":      "Current stock",
		"action.save":        "Save",
		"action.edit":        "Edit",
		"action.delete":      "Delete",
		"action.details":     "Details",
		"action.new":         "New",
		"action.filter":      "Filter",
		"action.export":      "Export (Excel)",
		"action.add_line":    "Add article",
		"empty":              "No results.",
		"page":               "Page",

		"dashboard.top_suppliers": "Top suppliers",
		"dashboard.top_articles":  "Most ordered articles",
		"dashboard.monthly":       "Monthly totals",

		"sort.label":          "Sort by",
		"confirm.delete":      "Delete this item?",
		"action.cancel":       "Cancel",
		"action.back":         "Back to list",
		"supplier.new":        "New supplier",
		"article.new":         "New article",
		"article.stock_value": "Stock value",
	},
}
