package rules

// DefaultRules returns the cross-field checks the provider enforces on
// recipient details but does not describe in the requirements response.
func DefaultRules() []*Rule {
	return []*Rule{
		{
			ID:   "state-required",
			Name: "State code for US, CA, BR and AU addresses",
			Key:  "address.state",
			Expression: `!("address.country" in record) ||
				!(record["address.country"] in ["US", "CA", "BR", "AU"]) ||
				("address.state" in record && record["address.state"] != "")`,
			Message: "State code is required for {address.country}",
			Active:  true,
		},
		{
			ID:   "webpage-required",
			Name: "Webpage for OTHER company type",
			Key:  "webpage",
			Expression: `!("companyType" in record && record["companyType"] == "OTHER") ||
				("webpage" in record && record["webpage"] != "")`,
			Message: "Webpage is required when company type is OTHER",
			Active:  true,
		},
	}
}
