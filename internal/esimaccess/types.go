package esimaccess

// Package types accepted by /package/list.
const (
	PackageTypeBase  = "BASE"
	PackageTypeTopup = "TOPUP"
)

// PackageListParams filters /package/list. Empty fields are not sent.
type PackageListParams struct {
	LocationCode string `json:"locationCode,omitempty"`
	Type         string `json:"type,omitempty"`
	PackageCode  string `json:"packageCode,omitempty"`
	Slug         string `json:"slug,omitempty"`
	ICCID        string `json:"iccid,omitempty"`
}

type PackageList struct {
	PackageList []Package `json:"packageList"`
}

// Package is a purchasable data plan. Prices are in provider units
// (1/10000 of CurrencyCode); Volume is in bytes.
type Package struct {
	PackageCode         string            `json:"packageCode"`
	Slug                string            `json:"slug"`
	Name                string            `json:"name"`
	Price               int64             `json:"price"`
	RetailPrice         int64             `json:"retailPrice"`
	CurrencyCode        string            `json:"currencyCode"`
	Volume              int64             `json:"volume"`
	SMSStatus           int               `json:"smsStatus"`
	DataType            int               `json:"dataType"`
	UnusedValidTime     int               `json:"unusedValidTime"`
	Duration            int               `json:"duration"`
	DurationUnit        string            `json:"durationUnit"`
	Location            string            `json:"location"`
	Description         string            `json:"description"`
	ActiveType          int               `json:"activeType"`
	Speed               string            `json:"speed"`
	LocationNetworkList []LocationNetwork `json:"locationNetworkList,omitempty"`
}

type LocationNetwork struct {
	LocationName string     `json:"locationName"`
	LocationLogo string     `json:"locationLogo"`
	OperatorList []Operator `json:"operatorList"`
}

type Operator struct {
	OperatorName string `json:"operatorName"`
	NetworkType  string `json:"networkType"`
}

type LocationList struct {
	LocationList []Location `json:"locationList"`
}

// Location is a country (Type 1) or a multi-country region (Type 2).
type Location struct {
	Code            string     `json:"code"`
	Name            string     `json:"name"`
	Type            int        `json:"type"`
	SubLocationList []Location `json:"subLocationList,omitempty"`
}

// OrderRequest places one order for one or more packages. TransactionID is
// the caller's unique reference; the provider rejects duplicates.
type OrderRequest struct {
	TransactionID   string        `json:"transactionId"`
	Amount          int64         `json:"amount,omitempty"`
	PackageInfoList []PackageInfo `json:"packageInfoList"`
}

type PackageInfo struct {
	PackageCode string `json:"packageCode,omitempty"`
	Slug        string `json:"slug,omitempty"`
	Count       int    `json:"count"`
	Price       int64  `json:"price,omitempty"`
	PeriodNum   int    `json:"periodNum,omitempty"`
}

type OrderResult struct {
	OrderNo       string `json:"orderNo"`
	TransactionID string `json:"transactionId,omitempty"`
}

// ProfileAction identifies the eSIM targeted by a lifecycle call.
type ProfileAction struct {
	ICCID      string `json:"iccid,omitempty"`
	EsimTranNo string `json:"esimTranNo,omitempty"`
}

type TopupRequest struct {
	EsimTranNo    string `json:"esimTranNo,omitempty"`
	ICCID         string `json:"iccid,omitempty"`
	PackageCode   string `json:"packageCode"`
	TransactionID string `json:"transactionId"`
	Amount        int64  `json:"amount,omitempty"`
}

type TopupResult struct {
	TransactionID string `json:"transactionId"`
	ICCID         string `json:"iccid"`
	ExpiredTime   string `json:"expiredTime"`
	TotalVolume   int64  `json:"totalVolume"`
	TotalDuration int    `json:"totalDuration"`
	OrderUsage    int64  `json:"orderUsage"`
}

type Pager struct {
	PageNum  int `json:"pageNum"`
	PageSize int `json:"pageSize"`
	Total    int `json:"total,omitempty"`
}

// QueryTimeLayout formats QueryParams.StartTime and EndTime.
const QueryTimeLayout = "2006-01-02T15:04:05-07:00"

// QueryParams filters /esim/query. At least one of OrderNo, ICCID,
// EsimTranNo or a StartTime/EndTime window is expected upstream.
type QueryParams struct {
	OrderNo    string `json:"orderNo,omitempty"`
	ICCID      string `json:"iccid,omitempty"`
	EsimTranNo string `json:"esimTranNo,omitempty"`
	StartTime  string `json:"startTime,omitempty"`
	EndTime    string `json:"endTime,omitempty"`
	Pager      Pager  `json:"pager"`
}

type ProfileList struct {
	EsimList []Profile `json:"esimList"`
	Pager    Pager     `json:"pager"`
}

// Profile is an issued eSIM as reported by the provider.
type Profile struct {
	EsimTranNo     string           `json:"esimTranNo"`
	OrderNo        string           `json:"orderNo"`
	TransactionID  string           `json:"transactionId"`
	ICCID          string           `json:"iccid"`
	IMSI           string           `json:"imsi"`
	MSISDN         string           `json:"msisdn"`
	ActivationCode string           `json:"ac"`
	QRCodeURL      string           `json:"qrCodeUrl"`
	ShortURL       string           `json:"shortUrl"`
	SMDPStatus     string           `json:"smdpStatus"`
	EsimStatus     string           `json:"esimStatus"`
	TotalVolume    int64            `json:"totalVolume"`
	TotalDuration  int              `json:"totalDuration"`
	DurationUnit   string           `json:"durationUnit"`
	OrderUsage     int64            `json:"orderUsage"`
	ExpiredTime    string           `json:"expiredTime"`
	PackageList    []ProfilePackage `json:"packageList,omitempty"`
}

type ProfilePackage struct {
	PackageCode  string `json:"packageCode"`
	PackageName  string `json:"packageName"`
	Volume       int64  `json:"volume"`
	Duration     int    `json:"duration"`
	LocationCode string `json:"locationCode"`
}

type usageRequest struct {
	EsimTranNoList []string `json:"esimTranNoList"`
}

type UsageList struct {
	EsimUsageList []Usage `json:"esimUsageList"`
}

type Usage struct {
	EsimTranNo     string `json:"esimTranNo"`
	DataUsage      int64  `json:"dataUsage"`
	TotalData      int64  `json:"totalData"`
	LastUpdateTime string `json:"lastUpdateTime"`
}

// Balance is the merchant account balance in provider units.
type Balance struct {
	Balance int64 `json:"balance"`
}
