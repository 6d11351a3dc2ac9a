package models

// Session is the persisted authentication state. Both tokens are present or
// both absent.
type Session struct {
	AccessToken  string
	RefreshToken string
	User         *UserProfile
}

func (s Session) LoggedIn() bool {
	return s.AccessToken != "" && s.RefreshToken != ""
}
